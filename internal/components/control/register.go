package control

import "github.com/seasr/flowkit/pkg/component"

// Register adds the control components to r.
func Register(r *component.Registry) error {
	for _, c := range []struct {
		desc    component.Descriptor
		factory component.Factory
	}{
		{SwitchDescriptor, NewSwitch},
		{ForkDescriptor, NewForkX2},
		{StreamCounterDescriptor, NewStreamCounter},
		{InputCounterDescriptor, NewInputCounter},
		{TriggerMessageDescriptor, NewTriggerMessage},
		{TriggerMessageCountDescriptor, NewTriggerMessageCount},
		{DataTypeDecoderDescriptor, NewDataTypeDecoder},
	} {
		if err := r.Register(c.desc, c.factory); err != nil {
			return err
		}
	}
	return nil
}
