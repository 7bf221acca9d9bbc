package tuples

import (
	"maps"

	"github.com/seasr/flowkit/pkg/component"
)

// Options overrides the defaults of the tuple components.
type Options struct {
	// Database is the default DSN of the SQL components.
	Database string
}

// Register adds the tuple components to r.
func Register(r *component.Registry, opts Options) error {
	for _, c := range []struct {
		desc    component.Descriptor
		factory component.Factory
	}{
		{CSVToTuplesDescriptor, NewCSVToTuples},
		{TupleToCSVDescriptor, NewTupleToCSV},
		{TupleToJSONDescriptor, NewTupleToJSON},
		{JSONToTupleDescriptor, NewJSONToTuple},
		{TupleValueFilterDescriptor, NewTupleValueFilter},
		{TupleExpressionFilterDescriptor, NewTupleExpressionFilter},
		{TupleValueFrequencyCounterDescriptor, NewTupleValueFrequencyCounter},
		{UniqueTupleFilterDescriptor, NewUniqueTupleFilter},
		{AddTupleAttributeDescriptor, NewAddTupleAttribute},
		{TupleLoggerDescriptor, NewTupleLogger},
		{withDatabase(TupleToSQLDescriptor, opts.Database), NewTupleToSQL},
		{withDatabase(SQLToTupleDescriptor, opts.Database), NewSQLToTuple},
	} {
		if err := r.Register(c.desc, c.factory); err != nil {
			return err
		}
	}
	return nil
}

func withDatabase(d component.Descriptor, dsn string) component.Descriptor {
	if dsn == "" {
		return d
	}
	d.Properties = maps.Clone(d.Properties)
	d.Properties["database"] = dsn
	return d
}
