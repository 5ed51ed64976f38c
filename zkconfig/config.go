// Package zkconfig loads the configuration for connecting to ZooKeeper and
// for the default root nodes used by lock and election, the way the
// teacher's bootstrap package loads nexus-infra.yaml/nexus-app.yaml —
// except here the defaults are usable without any file at all, per the
// "never a mandatory global" guidance.
package zkconfig

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultLockRootNode and DefaultElectionRootNode are the persistent root
// paths used when a Config does not override them.
const (
	DefaultLockRootNode     = "_zklocking"
	DefaultElectionRootNode = "_zkelection"
)

// ZookeeperConfig describes how to reach the ensemble.
type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

// LockConfig configures the locking subsystem.
type LockConfig struct {
	RootNode string `yaml:"rootNode"`
}

// ElectionConfig configures the leader-election subsystem.
type ElectionConfig struct {
	RootNode string `yaml:"rootNode"`
}

// Config is the root configuration document.
type Config struct {
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Lock      LockConfig      `yaml:"lock"`
	Election  ElectionConfig  `yaml:"election"`
}

// Default returns a Config that works against a local, single-node
// ZooKeeper with the standard root node names.
func Default() Config {
	return Config{
		Zookeeper: ZookeeperConfig{
			Servers:        []string{"localhost:2181"},
			SessionTimeout: 5 * time.Second,
		},
		Lock: LockConfig{
			RootNode: DefaultLockRootNode,
		},
		Election: ElectionConfig{
			RootNode: DefaultElectionRootNode,
		},
	}
}

// LoadFile overlays a YAML document at path onto Default(). Fields absent
// from the file keep their default value.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
