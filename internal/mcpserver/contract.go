package mcpserver

// RuleFormatContract describes the filter rules the catalog understands and
// how search_catalog arguments map onto them.
const RuleFormatContract = `# Catalog Rule Format

A search is a list of rule tokens, one per non-empty filter field. Tokens are
ordered by field name and sent together with the page and sort order.

## Fields

| Field      | Argument                    | Token                  |
|------------|-----------------------------|------------------------|
| title      | title                       | ` + "`title=<text>`" + `         |
| channel    | channel                     | ` + "`channel=<text>`" + `       |
| topic      | topic                       | ` + "`topic=<text>`" + `         |
| start      | start + start_mode=after    | ` + "`start+<date>`" + `         |
| start      | start + start_mode=before   | ` + "`start-<date>`" + `         |
| start      | start + start_mode=age      | ` + "`age-<age>`" + `            |
| duration   | duration + duration_mode=shorter | ` + "`duration+<minutes>`" + ` |
| duration   | duration + duration_mode=longer  | ` + "`duration-<minutes>`" + ` |

## Rules

1. Empty fields produce no token. If every field is empty nothing is queried.
2. start and duration need a mode; without one the field is ignored.
3. Results come in pages of 10. Pages start at 1.
4. Sort fields: title, channel, start, duration, topic. Directions: ascending,
   descending. The default is start, descending.
5. While the catalog database is loading or refreshing, searches wait and
   retry; a search that stays busy too long fails with a busy error. Check
   database_status before retrying.

## Example

` + "```" + `json
{"title": "Wartezimmer", "channel": "ARD", "start": "2020-01-01", "start_mode": "after"}
` + "```" + `

is sent as the rules ` + "`" + `["channel=ARD", "start+2020-01-01", "title=Wartezimmer"]` + "`" + `.
`
