// Package features reads and writes the wide feature table consumed by the
// classifier.
//
// The table layout is positional: the first column is the row id, the second
// the optional class label, and every remaining column one feature value. Any
// table with that shape works, so existing PostgreSQL deployments can be read
// without migration. Queries are built with goqu and always sent as prepared
// statements.
package features
