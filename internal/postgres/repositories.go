package postgres

import (
	"strings"

	"github.com/nebryx/authz/fieldcrypt"
	"github.com/nebryx/authz/uid"
	"gorm.io/gorm"
)

// Options configures the repositories.
type Options struct {
	// Codec encrypts API key secrets at rest. Required.
	Codec *fieldcrypt.Codec
	// IDs generates principal uids.
	IDs                  *uid.Generator
	UserPrefix           string
	ServiceAccountPrefix string
	// ActivityBatchSize bounds the rows per INSERT of the activity writer.
	ActivityBatchSize int
}

// Repositories groups the stores the engine consumes.
type Repositories struct {
	Directory  *Directory
	Keys       *KeyStore
	Rules      *RuleStore
	Activities *ActivityWriter
}

func NewRepositories(db *gorm.DB, opts Options) Repositories {
	if opts.IDs == nil {
		opts.IDs = uid.New(uid.DefaultMaxAttempts)
	}
	return Repositories{
		Directory: &Directory{
			db:       db,
			ids:      opts.IDs,
			prefix:   normalizePrefix(opts.UserPrefix),
			saPrefix: normalizePrefix(opts.ServiceAccountPrefix),
		},
		Keys:       &KeyStore{db: db, codec: opts.Codec},
		Rules:      &RuleStore{db: db},
		Activities: &ActivityWriter{db: db, batchSize: opts.ActivityBatchSize},
	}
}

// normalizePrefix matches the casing uid.Generator applies when minting.
func normalizePrefix(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}
