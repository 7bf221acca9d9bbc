package control

import (
	"context"
	"strconv"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// StreamCounterDescriptor describes StreamCounter.
var StreamCounterDescriptor = component.Descriptor{
	Name:        "StreamCounter",
	Description: "Counts the objects of a stream and emits the count when the stream ends",
	Inputs:      []string{"object"},
	Outputs:     []string{"object", "count"},
	Properties: map[string]string{
		component.PropStreamID: "0",
	},
}

// notStreaming marks a StreamCounter outside of its stream.
const notStreaming = -1

// StreamCounter forwards objects and counts those inside its stream.
type StreamCounter struct {
	count int
}

// NewStreamCounter creates the component.
func NewStreamCounter() component.Component { return &StreamCounter{count: notStreaming} }

func (s *StreamCounter) Initialize(context.Context, *component.Properties) error {
	s.count = notStreaming
	return nil
}

func (s *StreamCounter) Execute(_ context.Context, cc *component.Context) error {
	if s.count != notStreaming {
		s.count++
	} else {
		cc.Logger().Warn("not operating in streaming mode, forwarding input object only")
	}
	return cc.Push("object", cc.Input("object"))
}

func (s *StreamCounter) StartStream(context.Context, *component.Context) error {
	s.count = 0
	return nil
}

func (s *StreamCounter) EndStream(_ context.Context, cc *component.Context) error {
	n := s.count
	s.count = notStreaming
	return cc.Push("count", countStrings(n))
}

func (s *StreamCounter) Dispose(context.Context) error { return nil }

// InputCounterDescriptor describes InputCounter.
var InputCounterDescriptor = component.Descriptor{
	Name:        "InputCounter",
	Description: "Emits a running count for every object and the total when the stream ends",
	Inputs:      []string{"object"},
	Outputs:     []string{"object", "current_count", "total_count"},
	Properties: map[string]string{
		component.PropStreamID: "0",
	},
}

// InputCounter counts every object it forwards.
type InputCounter struct {
	count int
}

// NewInputCounter creates the component.
func NewInputCounter() component.Component { return &InputCounter{} }

func (c *InputCounter) Initialize(context.Context, *component.Properties) error { return nil }

func (c *InputCounter) Execute(_ context.Context, cc *component.Context) error {
	c.count++
	if err := cc.Push("current_count", countStrings(c.count)); err != nil {
		return err
	}
	return cc.Push("object", cc.Input("object"))
}

func (c *InputCounter) StartStream(context.Context, *component.Context) error {
	c.count = 0
	return nil
}

func (c *InputCounter) EndStream(_ context.Context, cc *component.Context) error {
	n := c.count
	c.count = 0
	return cc.Push("total_count", countStrings(n))
}

func (c *InputCounter) Dispose(context.Context) error { return nil }

func countStrings(n int) *datatypes.Strings {
	return datatypes.NewStrings(strconv.Itoa(n))
}
