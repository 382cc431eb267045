package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tipchain/native/tipjar"
	"tipchain/storage"
)

func tipjarStorageKey(owner [20]byte, jarID string) []byte {
	buf := make([]byte, 0, len(tipjarRecordPrefix)+len(owner)+1+len(jarID))
	buf = append(buf, tipjarRecordPrefix...)
	buf = append(buf, owner[:]...)
	buf = append(buf, '/')
	buf = append(buf, jarID...)
	return ethcrypto.Keccak256(buf)
}

// TipJarVaultAddress derives the module account that holds a jar's funds. The
// derivation is deterministic so the vault never needs to be stored.
func (m *Manager) TipJarVaultAddress(owner [20]byte, jarID string) [20]byte {
	buf := make([]byte, 0, len(tipjarVaultPrefix)+len(owner)+1+len(jarID))
	buf = append(buf, tipjarVaultPrefix...)
	buf = append(buf, owner[:]...)
	buf = append(buf, '/')
	buf = append(buf, jarID...)
	hash := ethcrypto.Keccak256(buf)
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

type storedTip struct {
	Sender     [20]byte
	Amount     *big.Int
	Timestamp  *big.Int
	Visibility uint8
	Memo       string
}

type storedTipJar struct {
	Owner         [20]byte
	JarID         string
	Description   string
	Category      string
	Goal          *big.Int
	TotalReceived *big.Int
	TipCount      uint64
	Balance       *big.Int
	Active        bool
	Private       bool
	CreatedAt     *big.Int
	History       []storedTip
}

func newStoredTipJar(j *tipjar.TipJar) *storedTipJar {
	if j == nil {
		return nil
	}
	stored := &storedTipJar{
		Owner:         j.Owner,
		JarID:         j.JarID,
		Description:   j.Description,
		Category:      j.Category,
		Goal:          nonNil(j.Goal),
		TotalReceived: nonNil(j.TotalReceived),
		TipCount:      j.TipCount,
		Balance:       nonNil(j.Balance),
		Active:        j.Active,
		Private:       j.Private,
		CreatedAt:     big.NewInt(j.CreatedAt),
		History:       make([]storedTip, len(j.History)),
	}
	for i := range j.History {
		tip := j.History[i]
		stored.History[i] = storedTip{
			Sender:     tip.Sender,
			Amount:     nonNil(tip.Amount),
			Timestamp:  big.NewInt(tip.Timestamp),
			Visibility: uint8(tip.Visibility),
			Memo:       tip.Memo,
		}
	}
	return stored
}

func (s *storedTipJar) toTipJar() (*tipjar.TipJar, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil tipjar storage record")
	}
	jar := &tipjar.TipJar{
		Owner:         s.Owner,
		JarID:         s.JarID,
		Description:   s.Description,
		Category:      s.Category,
		Goal:          nonNil(s.Goal),
		TotalReceived: nonNil(s.TotalReceived),
		TipCount:      s.TipCount,
		Balance:       nonNil(s.Balance),
		Active:        s.Active,
		Private:       s.Private,
		History:       make([]tipjar.Tip, len(s.History)),
	}
	if s.CreatedAt != nil {
		jar.CreatedAt = s.CreatedAt.Int64()
	}
	for i := range s.History {
		tip := s.History[i]
		record := tipjar.Tip{
			Sender:     tip.Sender,
			Amount:     nonNil(tip.Amount),
			Visibility: tipjar.Visibility(tip.Visibility),
			Memo:       tip.Memo,
		}
		if tip.Timestamp != nil {
			record.Timestamp = tip.Timestamp.Int64()
		}
		jar.History[i] = record
	}
	return tipjar.SanitizeJar(jar)
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// TipJarPut validates and persists the jar record.
func (m *Manager) TipJarPut(j *tipjar.TipJar) error {
	if j == nil {
		return fmt.Errorf("state: nil tipjar")
	}
	sanitized, err := tipjar.SanitizeJar(j)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredTipJar(sanitized))
	if err != nil {
		return err
	}
	return m.db.Put(tipjarStorageKey(sanitized.Owner, sanitized.JarID), encoded)
}

// TipJarGet loads the jar stored for (owner, jarID).
func (m *Manager) TipJarGet(owner [20]byte, jarID string) (*tipjar.TipJar, bool) {
	data, err := m.db.Get(tipjarStorageKey(owner, jarID))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedTipJar)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	jar, err := stored.toTipJar()
	if err != nil {
		return nil, false
	}
	return jar, true
}

// TipJarDelete removes the jar record. Deleting an absent record is an error
// so closure cannot silently race with itself.
func (m *Manager) TipJarDelete(owner [20]byte, jarID string) error {
	key := tipjarStorageKey(owner, jarID)
	ok, err := m.db.Has(key)
	if err != nil {
		return err
	}
	if !ok {
		return tipjar.ErrNotFound
	}
	if err := m.db.Delete(key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return tipjar.ErrNotFound
		}
		return err
	}
	return nil
}
