package translation

import "context"

// Offline is the development provider. It returns every input unchanged so
// the rest of the pipeline can run without credentials. Strict mode refuses
// to start with it.
type Offline struct{}

func NewOffline() *Offline { return &Offline{} }

func (o *Offline) Name() string { return string(ProviderOffline) }

func (o *Offline) Translate(_ context.Context, texts []string, _, _ string) ([]string, error) {
	out := make([]string, len(texts))
	copy(out, texts)
	return out, nil
}
