package storagemethod

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// DefaultPolicies are the storage policies known without configuration.
var DefaultPolicies = map[string]string{
	"SINGLE":      "plain/nb_copy=1",
	"TWOCOPIES":   "plain/nb_copy=2",
	"THREECOPIES": "plain/nb_copy=3",
	"EC":          "ec/algo=liberasurecode_rs_vand,k=6,m=3",
}

// Policies maps storage policy names to chunk methods.
type Policies struct {
	methods map[string]string
}

// NewPolicies merges extra policies over the defaults. Names are upper-cased.
// Every chunk method is resolved up front so a bad configuration fails early.
func NewPolicies(extra map[string]string) (*Policies, error) {
	methods := make(map[string]string, len(DefaultPolicies)+len(extra))
	for name, cm := range DefaultPolicies {
		methods[name] = cm
	}
	for name, cm := range extra {
		methods[strings.ToUpper(name)] = cm
	}
	for name, cm := range methods {
		if _, err := Resolve(cm); err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
	}
	return &Policies{methods: methods}, nil
}

// ChunkMethod returns the chunk method of a policy.
func (p *Policies) ChunkMethod(policy string) (string, error) {
	cm, ok := p.methods[strings.ToUpper(policy)]
	if !ok {
		return "", fmt.Errorf("%w: unknown policy %q", apperrors.ErrUnsupportedPolicy, policy)
	}
	return cm, nil
}

// Lookup resolves a policy name into its storage method.
func (p *Policies) Lookup(policy string) (StorageMethod, error) {
	cm, err := p.ChunkMethod(policy)
	if err != nil {
		return StorageMethod{}, err
	}
	return Resolve(cm)
}

// Names returns the known policy names, sorted.
func (p *Policies) Names() []string {
	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
