package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetimport/internal/schema"
)

// dialect captures the SQL differences between the supported drivers.
type dialect struct {
	name       string
	sqlDriver  string
	quoteChar  string
	numbered   bool // $1, $2 placeholders instead of ?
	maxParams  int
	surrogate  string
	types      map[schema.TypeTag]string
	metaTypes  [3]string // table_name, column lists, create_time
	listTables string
	upsertMeta string
}

var dialects = map[string]dialect{
	"mysql": {
		name:      "mysql",
		sqlDriver: "mysql",
		quoteChar: "`",
		maxParams: 65535,
		surrogate: "BIGINT AUTO_INCREMENT PRIMARY KEY",
		types: map[schema.TypeTag]string{
			schema.Integer:   "BIGINT",
			schema.Decimal:   "DECIMAL(10,2)",
			schema.ShortText: "VARCHAR(255)",
			schema.LongText:  "TEXT",
			schema.Binary:    "MEDIUMBLOB",
		},
		metaTypes:  [3]string{"VARCHAR(64)", "TEXT", "DATETIME"},
		listTables: "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'",
		upsertMeta: "INSERT INTO `table_metadata` (table_name, column_order, image_columns, create_time) VALUES (?, ?, ?, ?) " +
			"ON DUPLICATE KEY UPDATE column_order = VALUES(column_order), image_columns = VALUES(image_columns), create_time = VALUES(create_time)",
	},
	"sqlite3": {
		name:      "sqlite3",
		sqlDriver: "sqlite3",
		quoteChar: `"`,
		maxParams: 32766,
		surrogate: "INTEGER PRIMARY KEY AUTOINCREMENT",
		types: map[schema.TypeTag]string{
			schema.Integer:   "INTEGER",
			schema.Decimal:   "DECIMAL(10,2)",
			schema.ShortText: "TEXT",
			schema.LongText:  "TEXT",
			schema.Binary:    "BLOB",
		},
		metaTypes:  [3]string{"TEXT", "TEXT", "TIMESTAMP"},
		listTables: "SELECT name FROM sqlite_master WHERE type = 'table'",
		upsertMeta: `INSERT INTO "table_metadata" (table_name, column_order, image_columns, create_time) VALUES (?, ?, ?, ?) ` +
			"ON CONFLICT (table_name) DO UPDATE SET column_order = excluded.column_order, image_columns = excluded.image_columns, create_time = excluded.create_time",
	},
	"postgres": {
		name:      "postgres",
		sqlDriver: "pgx",
		quoteChar: `"`,
		numbered:  true,
		maxParams: 65535,
		surrogate: "BIGSERIAL PRIMARY KEY",
		types: map[schema.TypeTag]string{
			schema.Integer:   "BIGINT",
			schema.Decimal:   "DECIMAL(10,2)",
			schema.ShortText: "VARCHAR(255)",
			schema.LongText:  "TEXT",
			schema.Binary:    "BYTEA",
		},
		metaTypes:  [3]string{"VARCHAR(64)", "TEXT", "TIMESTAMPTZ"},
		listTables: "SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = current_schema()",
		upsertMeta: `INSERT INTO "table_metadata" (table_name, column_order, image_columns, create_time) VALUES ($1, $2, $3, $4) ` +
			"ON CONFLICT (table_name) DO UPDATE SET column_order = excluded.column_order, image_columns = excluded.image_columns, create_time = excluded.create_time",
	},
}

func lookupDialect(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "pgx", "postgresql":
		driver = "postgres"
	case "sqlite":
		driver = "sqlite3"
	}
	d, ok := dialects[strings.ToLower(driver)]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported driver: %s", driver)
	}
	return d, nil
}

func (d dialect) quote(ident string) string {
	return d.quoteChar + strings.ReplaceAll(ident, d.quoteChar, d.quoteChar+d.quoteChar) + d.quoteChar
}

// placeholder returns the n-th (1-based) bind parameter.
func (d dialect) placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d dialect) columnType(t schema.TypeTag) string {
	if ct, ok := d.types[t]; ok {
		return ct
	}
	return d.types[schema.ShortText]
}

func (d dialect) createTableSQL(s schema.TableSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (%s %s", d.quote(s.Target), d.quote(schema.SurrogateKey), d.surrogate)
	for _, c := range s.Columns {
		fmt.Fprintf(&b, ", %s %s", d.quote(c.Name), d.columnType(c.Type))
	}
	b.WriteString(")")
	return b.String()
}

func (d dialect) createMetadataSQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (table_name %s PRIMARY KEY, column_order %s NOT NULL, image_columns %s, create_time %s)",
		d.quote(MetadataTable), d.metaTypes[0], d.metaTypes[1], d.metaTypes[1], d.metaTypes[2])
}

// insertSQL builds a multi-row INSERT for rows rows of the given columns.
func (d dialect) insertSQL(target string, columns []string, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (", d.quote(target))
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.quote(c))
	}
	b.WriteString(") VALUES ")

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// rowsPerStatement keeps one INSERT under the driver's bind-parameter limit.
func (d dialect) rowsPerStatement(columns, batch int) int {
	if columns == 0 {
		return batch
	}
	n := d.maxParams / columns
	if n < 1 {
		n = 1
	}
	if batch > 0 && batch < n {
		return batch
	}
	return n
}

// isBinaryType reports database type names that hold raw bytes.
func isBinaryType(dbType string) bool {
	t := strings.ToUpper(dbType)
	return strings.Contains(t, "BLOB") || strings.Contains(t, "BYTEA") || strings.Contains(t, "BINARY")
}
