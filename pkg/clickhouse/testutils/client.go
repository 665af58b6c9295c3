package testutils

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// NewTestClient wraps conn (usually a mocks.MockConn) so repositories can be
// tested without a running server. The result satisfies clickhouse.Client.
func NewTestClient(conn driver.Conn) *TestClient {
	return &TestClient{conn: conn}
}

type TestClient struct {
	conn driver.Conn
}

func (c *TestClient) Conn() driver.Conn {
	return c.conn
}

func (c *TestClient) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *TestClient) Close() error {
	return c.conn.Close()
}
