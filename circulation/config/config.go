package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/odl-go/circulation-service/circulation/internal/server"
	"github.com/odl-go/circulation-service/pkg/kafka"
	"github.com/odl-go/circulation-service/pkg/logger"
	"github.com/odl-go/circulation-service/pkg/postgres"
)

// ODL holds the distributor connection settings for the collection this
// instance serves.
type ODL struct {
	Username        string        `envconfig:"ODL_USERNAME"`
	Password        string        `envconfig:"ODL_PASSWORD" json:"-"`
	Timeout         time.Duration `envconfig:"ODL_TIMEOUT" default:"1m"`
	NotificationURL string        `envconfig:"ODL_NOTIFICATION_URL" default:"http://localhost:8080"`
}

type Reaper struct {
	Interval time.Duration `envconfig:"REAPER_INTERVAL" default:"1h"`
}

type Config struct {
	Server       server.Config
	Database     postgres.Config
	Kafka        kafka.Config
	ODL          ODL
	Reaper       Reaper
	CollectionID int64 `envconfig:"COLLECTION_ID" default:"1"`
	Log          logger.Log
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
