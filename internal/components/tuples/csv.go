// Package tuples provides the components that convert, filter, count and
// persist tuple batches.
package tuples

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
)

// Port names shared by the tuple components.
const (
	portTuples = "tuples"
	portMeta   = "meta_tuple"
	portText   = "text"
)

// CSVToTuplesDescriptor describes CSVToTuples.
var CSVToTuplesDescriptor = component.Descriptor{
	Name:        "CSVToTuples",
	Description: "Converts delimited text into tuples, one tuple per line",
	Inputs:      []string{portText},
	Outputs:     []string{portTuples, portMeta},
	Properties: map[string]string{
		"labels":         "",
		"tokenSeparator": ",",
	},
}

// CSVToTuples splits lines on a regular expression into the labelled
// fields.
type CSVToTuples struct {
	peer *tuple.Peer
	sep  *regexp.Regexp
}

// NewCSVToTuples creates the component.
func NewCSVToTuples() component.Component { return &CSVToTuples{} }

func (c *CSVToTuples) Initialize(_ context.Context, props *component.Properties) error {
	labels := props.List("labels", ",")
	if len(labels) == 0 {
		return fmt.Errorf("%w: labels", component.ErrMissingProperty)
	}
	sep, err := regexp.Compile(props.String("tokenSeparator"))
	if err != nil {
		return fmt.Errorf("property tokenSeparator: %w", err)
	}
	c.peer = tuple.NewPeer(labels...)
	c.sep = sep
	return nil
}

func (c *CSVToTuples) Execute(_ context.Context, cc *component.Context) error {
	texts, err := datatypes.ParseAsStrings(cc.Input(portText))
	if err != nil {
		return err
	}

	var out []*tuple.Tuple
	skipped := 0
	for _, text := range texts {
		sc := bufio.NewScanner(strings.NewReader(text))
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r")
			if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields := c.sep.Split(line, c.peer.Size())
			if len(fields) < c.peer.Size() {
				skipped++
				continue
			}
			t := c.peer.NewTuple()
			_ = t.SetValues(fields)
			out = append(out, t)
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read text: %w", err)
		}
	}
	if skipped > 0 {
		cc.Logger().Warn("skipped lines with missing fields", "lines", skipped, "labels", c.peer.String())
	}

	return pushTuples(cc, c.peer, out)
}

func (c *CSVToTuples) Dispose(context.Context) error { return nil }

// TupleToCSVDescriptor describes TupleToCSV.
var TupleToCSVDescriptor = component.Descriptor{
	Name:        "TupleToCSV",
	Description: "Renders tuples as delimited text",
	Inputs:      []string{portTuples, portMeta},
	Outputs:     []string{portText, portTuples, portMeta},
	Properties: map[string]string{
		"separator": ",",
		"header":    "true",
	},
}

// TupleToCSV joins the values of each tuple with a separator. The
// separator is removed from values so every line splits back cleanly.
type TupleToCSV struct {
	sep    string
	header bool
}

// NewTupleToCSV creates the component.
func NewTupleToCSV() component.Component { return &TupleToCSV{} }

func (c *TupleToCSV) Initialize(_ context.Context, props *component.Properties) error {
	c.sep = unescapeSeparator(props.String("separator"))
	if c.sep == "" {
		return fmt.Errorf("%w: separator", component.ErrMissingProperty)
	}
	header, err := props.Bool("header")
	if err != nil {
		return err
	}
	c.header = header
	return nil
}

func (c *TupleToCSV) Execute(_ context.Context, cc *component.Context) error {
	peer, tuples, err := tuple.Decode(cc.Input(portMeta), cc.Input(portTuples))
	if err != nil {
		return err
	}

	var sb strings.Builder
	if c.header {
		c.writeLine(&sb, peer.Fields())
	}
	for _, t := range tuples {
		c.writeLine(&sb, t.Values())
	}

	if err := cc.Push(portText, datatypes.NewStrings(sb.String())); err != nil {
		return err
	}
	if err := cc.Push(portTuples, cc.Input(portTuples)); err != nil {
		return err
	}
	return cc.Push(portMeta, cc.Input(portMeta))
}

func (c *TupleToCSV) writeLine(sb *strings.Builder, values []string) {
	for i, v := range values {
		if i > 0 {
			sb.WriteString(c.sep)
		}
		sb.WriteString(strings.ReplaceAll(v, c.sep, ""))
	}
	sb.WriteByte('\n')
}

func (c *TupleToCSV) HandleStreamInitiators(_ context.Context, cc *component.Context) error {
	return forwardDelimiter(cc, true)
}

func (c *TupleToCSV) HandleStreamTerminators(_ context.Context, cc *component.Context) error {
	return forwardDelimiter(cc, false)
}

// forwardDelimiter passes the incoming delimiter through on the tuple
// ports and a fresh one with the same stream id on text.
func forwardDelimiter(cc *component.Context, start bool) error {
	ports := cc.InputsWithTerminators()
	if start {
		ports = cc.InputsWithInitiators()
	}
	d := cc.Input(ports[0]).(component.Delimiter)

	var fresh component.Delimiter = component.NewStreamTerminator(d.StreamID())
	if start {
		fresh = component.NewStreamInitiator(d.StreamID())
	}
	if err := cc.Push(portText, fresh); err != nil {
		return err
	}
	if err := cc.Push(portTuples, d); err != nil {
		return err
	}
	return cc.Push(portMeta, component.CloneDelimiter(d))
}

func (c *TupleToCSV) Dispose(context.Context) error { return nil }

func unescapeSeparator(s string) string {
	switch s {
	case `\t`:
		return "\t"
	case `\n`:
		return "\n"
	default:
		return s
	}
}

// pushTuples emits the peer followed by the batch.
func pushTuples(cc *component.Context, peer *tuple.Peer, tuples []*tuple.Tuple) error {
	if err := cc.Push(portMeta, peer.Strings()); err != nil {
		return err
	}
	return cc.Push(portTuples, tuple.Encode(tuples))
}
