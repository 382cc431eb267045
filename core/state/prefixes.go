package state

var (
	accountPrefix      = []byte("account:")
	tipjarRecordPrefix = []byte("tipjar:")
	tipjarVaultPrefix  = []byte("tipjar/vault:")
)
