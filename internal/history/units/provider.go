package units

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/logbook/internal/errors"
)

// UnitConversion converts a base-unit value into one target unit.
type UnitConversion struct {
	Formula        string `json:"formula" yaml:"formula"`
	InverseFormula string `json:"inverseFormula" yaml:"inverseFormula"`
	Symbol         string `json:"symbol" yaml:"symbol"`
}

// PathConversions is the unit preference entry of one path.
type PathConversions struct {
	BaseUnit      string                    `json:"baseUnit" yaml:"baseUnit"`
	Category      string                    `json:"category" yaml:"category"`
	TargetUnit    string                    `json:"targetUnit,omitempty" yaml:"targetUnit,omitempty"`
	DisplayFormat string                    `json:"displayFormat,omitempty" yaml:"displayFormat,omitempty"`
	Conversions   map[string]UnitConversion `json:"conversions" yaml:"conversions"`
}

// Table maps signal paths to their conversions.
type Table map[string]PathConversions

// Provider supplies the conversion table.
type Provider interface {
	Conversions(ctx context.Context) (Table, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Table, error)

// Conversions calls f.
func (f ProviderFunc) Conversions(ctx context.Context) (Table, error) {
	return f(ctx)
}

// maxTableSize bounds the provider response body.
const maxTableSize = 8 << 20

// HTTPProvider fetches the table as JSON from a unit preference endpoint.
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

// NewHTTPProvider creates a provider for url using http.DefaultClient.
func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{URL: url, Client: http.DefaultClient}
}

// Conversions fetches and decodes the table.
func (p *HTTPProvider) Conversions(ctx context.Context) (Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", errors.ErrProviderUnavailable, p.URL, resp.StatusCode)
	}

	var table Table
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTableSize)).Decode(&table); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", errors.ErrProviderUnavailable, err)
	}
	return table, nil
}

// FileProvider reads the table from a YAML file on every call.
type FileProvider struct {
	Path string
}

// Conversions reads and decodes the file.
func (p *FileProvider) Conversions(ctx context.Context) (Table, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	}

	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", errors.ErrProviderUnavailable, p.Path, err)
	}
	return table, nil
}
