package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"solbridge/models"
)

// AddressSource supplies the self-custodied destination address. Key
// generation and signing live in a separate tool; this process only
// ever sees the public address.
type AddressSource interface {
	DestinationAddress() (models.DestinationWallet, error)
}

// StaticSource returns a fixed address from config or environment.
type StaticSource struct {
	Asset   string
	Address string
}

func (s StaticSource) DestinationAddress() (models.DestinationWallet, error) {
	addr := strings.TrimSpace(s.Address)
	if addr == "" {
		return models.DestinationWallet{}, fmt.Errorf("wallet: destination address is empty")
	}
	return models.DestinationWallet{Asset: s.Asset, Address: addr}, nil
}

// FileSource reads the address from a JSON keyfile written by the
// wallet generator. Only the public_key field is read; any private
// material in the file is ignored.
type FileSource struct {
	Asset string
	Path  string
}

func (f FileSource) DestinationAddress() (models.DestinationWallet, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return models.DestinationWallet{}, fmt.Errorf("wallet: read keyfile: %w", err)
	}

	var keyfile struct {
		PublicKey string `json:"public_key"`
		Address   string `json:"address"`
	}
	if err := json.Unmarshal(data, &keyfile); err != nil {
		return models.DestinationWallet{}, fmt.Errorf("wallet: parse keyfile: %w", err)
	}

	addr := keyfile.PublicKey
	if addr == "" {
		addr = keyfile.Address
	}
	if addr == "" {
		return models.DestinationWallet{}, fmt.Errorf("wallet: keyfile %s has no public address", f.Path)
	}
	return models.DestinationWallet{Asset: f.Asset, Address: addr}, nil
}
