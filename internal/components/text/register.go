package text

import "github.com/seasr/flowkit/pkg/component"

// Register adds the text components to r.
func Register(r *component.Registry) error {
	for _, c := range []struct {
		desc    component.Descriptor
		factory component.Factory
	}{
		{PushTextDescriptor, NewPushText},
		{ReadTextDescriptor, NewReadText},
		{WriteTextDescriptor, NewWriteText},
		{HTMLTextExtractorDescriptor, NewHTMLTextExtractor},
		{HTMLToMarkdownDescriptor, NewHTMLToMarkdown},
		{GenericTemplateDescriptor, NewGenericTemplate},
	} {
		if err := r.Register(c.desc, c.factory); err != nil {
			return err
		}
	}
	return nil
}
