// Package conddb reads and writes rows of conditions and hardware tables.
//
// A Table carries its column definitions, a selection (columns, order,
// limits, validity window, conditions filter) and the rows of the last load.
// Rows come from one of three places:
//
//   - a direct SQL connection (Postgres through lib/pq, SQLite through
//     go-sqlite3), or the HTTP query engine when one is configured;
//   - the conditions web service, for conditions tables;
//   - a local CSV file, through LoadFromCSV.
//
// Conditions rows also carry a channel and a validity start time. After a
// load, GetVldRow finds the row of a channel valid at a given time.
//
// # Writing
//
// Write checks that every non-nullable column is set, then either posts
// the rows as signed CSV to the web service (conditions tables) or runs
// INSERT and UPDATE statements in one transaction. With commit false the
// request or statements are printed instead. Failed SQL statements are
// appended to a cache file in the cache directory so they can be replayed.
//
// # Reloading
//
// Load and LoadFromDB do nothing when the selection has not changed since
// the last successful load.
package conddb
