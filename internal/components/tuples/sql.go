package tuples

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/seasr/flowkit/internal/sqldb"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
)

// MaxInsertsPerBatch is the number of rows inserted per transaction.
const MaxInsertsPerBatch = 100

// DefaultDatabase is used when neither the component nor the
// configuration names a database.
const DefaultDatabase = "sqlite:flowkit-tuples.db"

// TupleToSQLDescriptor describes TupleToSQL.
var TupleToSQLDescriptor = component.Descriptor{
	Name:        "TupleToSQL",
	Description: "Writes tuples into a newly created SQL table and emits the table name",
	Inputs:      []string{portTuples, portMeta},
	Outputs:     []string{"table_name"},
	Properties: map[string]string{
		"database":           DefaultDatabase,
		"column_definitions": "",
		"table_options":      "",
		"drop_table":         "true",
		"append":             "false",
		"table_prefix":       "temp",

		component.PropStreamID: "0",
	},
	FiringPolicy: component.FireAny,
}

// TupleToSQL pairs meta and tuple inputs across firings. Inside its own
// stream every batch goes into one table whose name is emitted, wrapped
// in delimiters, when the stream ends. Outside a stream each batch gets
// a new table unless append is set.
type TupleToSQL struct {
	db     *sqldb.DB
	ownsDB bool

	columnDefs   string
	tableOptions string
	dropTable    bool
	appendRows   bool
	prefix       string
	streamID     int

	columns   []string
	cache     *component.InputCache
	tables    []string
	current   string
	streaming bool
	seq       int
}

// NewTupleToSQL creates the component.
func NewTupleToSQL() component.Component { return &TupleToSQL{} }

func (c *TupleToSQL) Initialize(ctx context.Context, props *component.Properties) error {
	var cfg struct {
		Database     string `prop:"database"`
		ColumnDefs   string `prop:"column_definitions"`
		TableOptions string `prop:"table_options"`
		DropTable    bool   `prop:"drop_table"`
		Append       bool   `prop:"append"`
		Prefix       string `prop:"table_prefix"`
		StreamID     int    `prop:"_stream_id"`
	}
	if err := props.Decode(&cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.ColumnDefs) == "" {
		return fmt.Errorf("%w: column_definitions", component.ErrMissingProperty)
	}
	columns := ParseColumnNames(cfg.ColumnDefs)
	if len(columns) == 0 {
		return fmt.Errorf("property column_definitions: no columns in %q", cfg.ColumnDefs)
	}

	c.columnDefs = cfg.ColumnDefs
	c.tableOptions = cfg.TableOptions
	c.dropTable = cfg.DropTable
	c.appendRows = cfg.Append
	c.prefix = cfg.Prefix
	c.streamID = cfg.StreamID
	c.columns = columns
	c.cache = component.NewInputCache()
	c.tables = nil
	c.current = ""
	c.streaming = false

	if c.db == nil {
		db, err := sqldb.Open(ctx, cfg.Database, nil)
		if err != nil {
			return err
		}
		c.db, c.ownsDB = db, true
	}
	return nil
}

func (c *TupleToSQL) Execute(ctx context.Context, cc *component.Context) error {
	return c.process(ctx, cc)
}

func (c *TupleToSQL) HandleStreamInitiators(ctx context.Context, cc *component.Context) error {
	return c.process(ctx, cc)
}

func (c *TupleToSQL) HandleStreamTerminators(ctx context.Context, cc *component.Context) error {
	return c.process(ctx, cc)
}

func (c *TupleToSQL) process(ctx context.Context, cc *component.Context) error {
	for _, port := range []string{portMeta, portTuples} {
		if cc.IsInputAvailable(port) {
			c.cache.Add(port, cc.Input(port))
		}
	}

	for !c.cache.Empty(portMeta) && !c.cache.Empty(portTuples) {
		meta, _ := c.cache.Pop(portMeta)
		batch, _ := c.cache.Pop(portTuples)
		if err := c.handle(ctx, cc, meta, batch); err != nil {
			return err
		}
	}
	return nil
}

func (c *TupleToSQL) handle(ctx context.Context, cc *component.Context, meta, batch any) error {
	logger := cc.Logger()

	if component.IsDelimiter(meta) || component.IsDelimiter(batch) {
		dm, ok1 := meta.(component.Delimiter)
		dt, ok2 := batch.(component.Delimiter)
		if !ok1 || !ok2 || component.IsInitiator(dm) != component.IsInitiator(dt) {
			return fmt.Errorf("unbalanced stream delimiter received")
		}
		if dm.StreamID() != dt.StreamID() {
			return fmt.Errorf("received different stream ids on meta (%d) and tuples (%d)", dm.StreamID(), dt.StreamID())
		}
		if dm.StreamID() != c.streamID {
			return cc.Push("table_name", dm)
		}

		if component.IsInitiator(dm) {
			if c.streaming {
				logger.Error("stream start marker already received")
			}
			name, err := c.createTable(ctx, logger)
			if err != nil {
				return err
			}
			c.current = name
			c.streaming = true
			return nil
		}

		if !c.streaming {
			logger.Error("stream end marker received without a start marker")
		}
		if err := cc.Push("table_name", component.NewStreamInitiator(c.streamID)); err != nil {
			return err
		}
		if err := cc.Push("table_name", datatypes.NewStrings(c.current)); err != nil {
			return err
		}
		if err := cc.Push("table_name", component.NewStreamTerminator(c.streamID)); err != nil {
			return err
		}
		c.streaming = false
		c.current = ""
		return nil
	}

	if !c.streaming && (!c.appendRows || c.current == "") {
		name, err := c.createTable(ctx, logger)
		if err != nil {
			return err
		}
		c.current = name
	}

	_, tuples, err := tuple.Decode(meta, batch)
	if err != nil {
		return err
	}
	rows := make([][]any, len(tuples))
	for i, t := range tuples {
		row := make([]any, len(c.columns))
		for j, col := range c.columns {
			if v := t.Get(col); v != "" {
				row[j] = v
			}
		}
		rows[i] = row
	}
	if err := c.db.InsertBatches(ctx, c.current, c.columns, rows, MaxInsertsPerBatch); err != nil {
		return err
	}
	logger.Debug("inserted tuples", "table", c.current, "rows", len(rows))

	if !c.streaming {
		return cc.Push("table_name", datatypes.NewStrings(c.current))
	}
	return nil
}

func (c *TupleToSQL) createTable(ctx context.Context, logger *slog.Logger) (string, error) {
	c.seq++
	name := c.prefix + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + strconv.Itoa(c.seq)
	stmt := strings.TrimSpace(fmt.Sprintf("CREATE TABLE %s (%s) %s", name, c.columnDefs, c.tableOptions))
	if err := c.db.Exec(ctx, stmt); err != nil {
		return "", fmt.Errorf("create table %s: %w", name, err)
	}
	c.tables = append(c.tables, name)
	logger.Debug("created table", "table", name)
	return name, nil
}

func (c *TupleToSQL) Dispose(ctx context.Context) error {
	var err error
	if c.dropTable && c.db != nil {
		for _, name := range c.tables {
			if dropErr := c.db.Exec(ctx, "DROP TABLE IF EXISTS "+name); dropErr != nil && err == nil {
				err = dropErr
			}
		}
		c.tables = nil
	}
	if c.ownsDB {
		if closeErr := c.db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		c.db, c.ownsDB = nil, false
	}
	return err
}

// constraintWords start table constraints rather than column definitions.
var constraintWords = map[string]bool{
	"PRIMARY": true, "UNIQUE": true, "FOREIGN": true, "CONSTRAINT": true,
	"CHECK": true, "KEY": true, "INDEX": true, "EXCLUDE": true,
}

// ParseColumnNames returns the column names of a column definition list
// such as "name VARCHAR(30) NOT NULL, age INT, PRIMARY KEY (name)".
func ParseColumnNames(defs string) []string {
	var names []string
	for _, def := range splitTopLevel(defs) {
		fields := strings.Fields(def)
		if len(fields) == 0 || constraintWords[strings.ToUpper(fields[0])] {
			continue
		}
		names = append(names, strings.Trim(fields[0], "\"`[]"))
	}
	return names
}

// splitTopLevel splits on commas outside parentheses and quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	var quote rune
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// SQLToTupleDescriptor describes SQLToTuple.
var SQLToTupleDescriptor = component.Descriptor{
	Name:        "SQLToTuple",
	Description: "Runs the incoming query and emits the result rows as tuples",
	Inputs:      []string{"query"},
	Outputs:     []string{portTuples, portMeta},
	Properties: map[string]string{
		"database": DefaultDatabase,
	},
}

// SQLToTuple uses the result column labels as the peer.
type SQLToTuple struct {
	db     *sqldb.DB
	ownsDB bool
}

// NewSQLToTuple creates the component.
func NewSQLToTuple() component.Component { return &SQLToTuple{} }

func (c *SQLToTuple) Initialize(ctx context.Context, props *component.Properties) error {
	if c.db != nil {
		return nil
	}
	dsn, err := props.Required("database")
	if err != nil {
		return err
	}
	db, err := sqldb.Open(ctx, dsn, nil)
	if err != nil {
		return err
	}
	c.db, c.ownsDB = db, true
	return nil
}

func (c *SQLToTuple) Execute(ctx context.Context, cc *component.Context) error {
	query, err := datatypes.ParseAsString(cc.Input("query"))
	if err != nil {
		return err
	}
	cc.Logger().Debug("running query", "query", query)

	columns, rows, err := c.db.QueryStrings(ctx, query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		cc.Logger().Warn("no database records match the query", "query", query)
	}

	peer := tuple.NewPeer(columns...)
	tuples := make([]*tuple.Tuple, 0, len(rows))
	for _, row := range rows {
		t := peer.NewTuple()
		if err := t.SetValues(row); err != nil {
			return err
		}
		tuples = append(tuples, t)
	}
	return pushTuples(cc, peer, tuples)
}

func (c *SQLToTuple) Dispose(context.Context) error {
	if !c.ownsDB {
		return nil
	}
	err := c.db.Close()
	c.db, c.ownsDB = nil, false
	return err
}
