package control

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// TriggerMessageDescriptor describes TriggerMessage.
var TriggerMessageDescriptor = component.Descriptor{
	Name:         "TriggerMessage",
	Description:  "Pushes the latest message once for every trigger received",
	Inputs:       []string{"object", "Trigger"},
	Outputs:      []string{"object"},
	FiringPolicy: component.FireAny,
}

// TriggerMessage holds the latest message and releases it on triggers.
type TriggerMessage struct {
	triggers     int
	message      any
	hasMessage   bool
	gotInitiator bool
}

// NewTriggerMessage creates the component.
func NewTriggerMessage() component.Component { return &TriggerMessage{} }

func (t *TriggerMessage) Initialize(context.Context, *component.Properties) error {
	t.triggers, t.message, t.hasMessage, t.gotInitiator = 0, nil, false, false
	return nil
}

func (t *TriggerMessage) Execute(_ context.Context, cc *component.Context) error {
	if cc.IsInputAvailable("Trigger") {
		t.triggers++
	}
	if cc.IsInputAvailable("object") {
		if t.hasMessage {
			cc.Logger().Warn("replacing message with new one received")
		}
		t.message, t.hasMessage = cc.Input("object"), true
	}

	if !t.hasMessage {
		return nil
	}
	for ; t.triggers > 0; t.triggers-- {
		if err := cc.Push("object", t.message); err != nil {
			return err
		}
	}
	return nil
}

// HandleStreamInitiators forwards initiators arriving with the triggers.
// Only one stream can be open at a time.
func (t *TriggerMessage) HandleStreamInitiators(_ context.Context, cc *component.Context) error {
	if !contains(cc.InputsWithInitiators(), "Trigger") {
		return nil
	}
	if t.gotInitiator {
		return errors.New("cannot process multiple streams at the same time")
	}
	t.gotInitiator = true
	return cc.Push("object", cc.Input("Trigger"))
}

func (t *TriggerMessage) HandleStreamTerminators(_ context.Context, cc *component.Context) error {
	if !contains(cc.InputsWithTerminators(), "Trigger") {
		return nil
	}
	if !t.gotInitiator {
		return errors.New("received stream terminator without stream initiator")
	}
	t.gotInitiator = false
	return cc.Push("object", cc.Input("Trigger"))
}

func (t *TriggerMessage) Dispose(context.Context) error {
	t.message = nil
	return nil
}

// TriggerMessageCountDescriptor describes TriggerMessageCount.
var TriggerMessageCountDescriptor = component.Descriptor{
	Name:         "TriggerMessageCount",
	Description:  "Pushes every object as many times as the count paired with it",
	Inputs:       []string{"object", "count"},
	Outputs:      []string{"object"},
	FiringPolicy: component.FireAny,
}

// TriggerMessageCount pairs counts and objects in arrival order.
type TriggerMessageCount struct {
	cache     *component.InputCache
	streaming bool
}

// NewTriggerMessageCount creates the component.
func NewTriggerMessageCount() component.Component { return &TriggerMessageCount{} }

func (t *TriggerMessageCount) Initialize(context.Context, *component.Properties) error {
	t.cache = component.NewInputCache()
	return nil
}

func (t *TriggerMessageCount) Execute(_ context.Context, cc *component.Context) error {
	for _, port := range []string{"count", "object"} {
		if cc.IsInputAvailable(port) {
			t.cache.Add(port, cc.Input(port))
		}
	}

	for !t.cache.Empty("count") && !t.cache.Empty("object") {
		count, _ := t.cache.Peek("count")
		data, _ := t.cache.Peek("object")

		if component.IsDelimiter(count) {
			cc.Logger().Warn("stream markers should not arrive on the count port, ignoring them")
			t.cache.Pop("count")
			continue
		}
		if component.IsDelimiter(data) {
			t.cache.Pop("object")
			t.streaming = component.IsInitiator(data)
			if err := cc.Push("object", data); err != nil {
				return err
			}
			continue
		}

		raw, err := datatypes.ParseAsString(count)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		t.cache.Pop("count")
		t.cache.Pop("object")
		for i := 0; i < n; i++ {
			if err := cc.Push("object", data); err != nil {
				return err
			}
		}
	}

	// a terminator does not need a count to pass
	if t.streaming {
		if data, ok := t.cache.Peek("object"); ok && component.IsTerminator(data) {
			t.cache.Pop("object")
			t.streaming = false
			return cc.Push("object", data)
		}
	}
	return nil
}

func (t *TriggerMessageCount) HandleStreamInitiators(ctx context.Context, cc *component.Context) error {
	return t.Execute(ctx, cc)
}

func (t *TriggerMessageCount) HandleStreamTerminators(ctx context.Context, cc *component.Context) error {
	return t.Execute(ctx, cc)
}

func (t *TriggerMessageCount) Dispose(context.Context) error {
	t.cache.Clear()
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
