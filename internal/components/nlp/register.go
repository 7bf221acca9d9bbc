package nlp

import "github.com/seasr/flowkit/pkg/component"

// Register adds the nlp components to r.
func Register(r *component.Registry) error {
	for _, c := range []struct {
		desc    component.Descriptor
		factory component.Factory
	}{
		{SentenceDetectorDescriptor, NewSentenceDetector},
		{TokenizerDescriptor, NewTokenizer},
		{SentenceTokenizerDescriptor, NewSentenceTokenizer},
		{PosTaggerDescriptor, NewPosTagger},
		{ChunkerDescriptor, NewChunker},
		{NamedEntityDescriptor, NewNamedEntity},
		{NETupleTaggerDescriptor, NewNETupleTagger},
	} {
		if err := r.Register(c.desc, c.factory); err != nil {
			return err
		}
	}
	return nil
}
