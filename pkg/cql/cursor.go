package cql

// Cursor is a single-pass iterator over the rows of an executed statement.
type Cursor interface {
	// Columns describes the result set. It is empty for statements that return no rows.
	Columns() []Column

	// Next advances to the next row. The returned cells are owned by the
	// cursor and are only valid until the following call.
	Next() ([]*Cell, bool)

	// Err returns the error that ended iteration, if any.
	Err() error

	// ResponseSize reports the number of result bytes received from the
	// server, when the connection can tell.
	ResponseSize() (int64, bool)

	// Close releases the cursor and returns the same error as Err.
	Close() error
}
