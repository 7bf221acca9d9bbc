package nlp

import (
	"context"
	"fmt"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/tuple"
)

// NETuplePeer is the layout of the entity tuples emitted by NETupleTagger.
// pid holds the id field of the tuple the entity was found in.
var NETuplePeer = tuple.Extend(EntityPeer, "pid")

// NETupleTaggerDescriptor describes NETupleTagger.
var NETupleTaggerDescriptor = component.Descriptor{
	Name:        "NETupleTagger",
	Description: "Finds the named entities in a text field of incoming tuples",
	Inputs:      []string{"tuples", "meta_tuple"},
	Outputs:     []string{"tuples", "meta_tuple", "neTuples", "neMeta_tuple"},
	Properties: map[string]string{
		"lang_code": "en",
		"textField": "text",
		"idField":   "id",
		"NEType":    "person,location,organization",
	},
}

// NETupleTagger forwards its input and emits the entities of every tuple,
// linked back to it through pid.
type NETupleTagger struct {
	recognizer EntityRecognizer
	extractor  *Extractor
	textField  string
	idField    string
}

// NewNETupleTagger creates the component with the prose recognizer.
func NewNETupleTagger() component.Component {
	return &NETupleTagger{recognizer: ProseRecognizer{}}
}

func (n *NETupleTagger) Initialize(_ context.Context, props *component.Properties) error {
	if err := initLanguage(props); err != nil {
		return err
	}
	var err error
	if n.textField, err = props.Required("textField"); err != nil {
		return err
	}
	if n.idField, err = props.Required("idField"); err != nil {
		return err
	}
	n.extractor, err = NewExtractor(n.recognizer, ParseTypes(props.String("NEType")), nil)
	if err != nil {
		return fmt.Errorf("NEType: %w", err)
	}
	return nil
}

func (n *NETupleTagger) Execute(_ context.Context, cc *component.Context) error {
	meta, batch := cc.Input("meta_tuple"), cc.Input("tuples")
	peer, tuples, err := tuple.Decode(meta, batch)
	if err != nil {
		return err
	}
	for _, f := range []string{n.textField, n.idField} {
		if !peer.Has(f) {
			return fmt.Errorf("no field named %q in %s", f, peer)
		}
	}
	n.extractor.logger = cc.Logger()

	var out []*tuple.Tuple
	for _, t := range tuples {
		id := t.Get(n.idField)
		for sid, sentence := range SplitSentences(t.Get(n.textField)) {
			mentions, err := n.extractor.Extract(sentence)
			if err != nil {
				return fmt.Errorf("tuple %s: %w", id, err)
			}
			for _, m := range mentions {
				ne := NETuplePeer.NewTuple()
				_ = ne.SetValues(append(mentionValues(sid, m), id))
				out = append(out, ne)
			}
		}
	}

	if err := cc.Push("meta_tuple", meta); err != nil {
		return err
	}
	if err := cc.Push("tuples", batch); err != nil {
		return err
	}
	if err := cc.Push("neMeta_tuple", NETuplePeer.Strings()); err != nil {
		return err
	}
	return cc.Push("neTuples", tuple.Encode(out))
}

func (n *NETupleTagger) Dispose(context.Context) error {
	n.extractor = nil
	return nil
}
