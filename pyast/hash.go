package pyast

import (
	"github.com/minio/highwayhash"
)

var hashKey = []byte("EXCELSIORCACHEKEYEXCELSIORCACHE0")

// Hash returns a stable 64-bit content hash used for cache keys and backup
// integrity checks.
func Hash(data []byte) (uint64, error) {
	hash, err := highwayhash.New64(hashKey)
	if err != nil {
		return 0, err
	}
	_, err = hash.Write(data)
	return hash.Sum64(), err
}
