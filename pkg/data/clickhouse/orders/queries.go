package orders

// orderColumns is the column list of the orders table, in Append order.
const orderColumns = `id, order_time, amount, topic, partition, offset, ingested_at`

// CreateTableQuery returns the CREATE TABLE statement for the orders table.
// ReplacingMergeTree collapses redeliveries of the same order id.
func CreateTableQuery(tableName string) string {
	return `CREATE TABLE IF NOT EXISTS ` + tableName + ` (
		id String,
		order_time DateTime64(3, 'UTC'),
		amount Float64,
		topic LowCardinality(String),
		partition Int32,
		offset Int64,
		ingested_at DateTime64(3, 'UTC')
	)
	ENGINE = ReplacingMergeTree(ingested_at)
	ORDER BY id`
}

// InsertQueryForBatch returns the INSERT statement used with PrepareBatch.
func InsertQueryForBatch(tableName string) string {
	return `INSERT INTO ` + tableName + ` (` + orderColumns + `)`
}

// CountQuery returns the number of distinct orders stored.
func CountQuery(tableName string) string {
	return `SELECT count() FROM ` + tableName + ` FINAL`
}
