// Package registry publishes leadership status to Nacos, so that other
// services can discover the current leader of an election the way they
// discover any other service instance, instead of talking to ZooKeeper
// directly.
package registry

import (
	"fmt"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"

	"github.com/mlindqvist/zkdistributed/logger"
)

// LeaderRegistry registers and deregisters this process as the live
// instance of an election's service name in Nacos, ephemeral for the
// same reason a ZooKeeper leader_ack node is ephemeral: if the process
// dies without deregistering, Nacos's own heartbeat timeout retires it.
type LeaderRegistry struct {
	naming      naming_client.INamingClient
	groupName   string
	serviceName string
	ip          string
	port        int
}

// NewLeaderRegistry dials Nacos and prepares a registry for serviceName.
func NewLeaderRegistry(serverConfigs []constant.ServerConfig, clientConfig *constant.ClientConfig, groupName, serviceName, ip string, port int) (*LeaderRegistry, error) {
	if groupName == "" {
		groupName = "DEFAULT_GROUP"
	}

	naming, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, fmt.Errorf("create nacos naming client: %w", err)
	}

	return &LeaderRegistry{
		naming:      naming,
		groupName:   groupName,
		serviceName: serviceName,
		ip:          ip,
		port:        port,
	}, nil
}

// MarkLeader registers this instance as the serviceName's live endpoint.
// Call it from an OnWinningElection callback, after the caller's own
// leadership duties (if any) have been set up.
func (r *LeaderRegistry) MarkLeader() error {
	ok, err := r.naming.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          r.ip,
		Port:        uint64(r.port),
		ServiceName: r.serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   r.groupName,
	})
	if err != nil {
		return fmt.Errorf("register leader with nacos: %w", err)
	}
	if !ok {
		return fmt.Errorf("nacos did not accept leader registration for %s", r.serviceName)
	}
	logger.Logger.Info().Str("service", r.serviceName).Str("ip", r.ip).Int("port", r.port).Msg("registered as leader")
	return nil
}

// MarkNotLeader deregisters this instance. Call it from an
// OnLosingElection callback, or on graceful shutdown while leader.
func (r *LeaderRegistry) MarkNotLeader() error {
	_, err := r.naming.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          r.ip,
		Port:        uint64(r.port),
		ServiceName: r.serviceName,
		Ephemeral:   true,
		GroupName:   r.groupName,
	})
	if err != nil {
		return fmt.Errorf("deregister leader from nacos: %w", err)
	}
	logger.Logger.Info().Str("service", r.serviceName).Msg("deregistered as leader")
	return nil
}

// CurrentLeader discovers the currently healthy instance of serviceName,
// for a client that wants to talk to whoever is leader without itself
// participating in the election.
func (r *LeaderRegistry) CurrentLeader() (ip string, port int, err error) {
	instance, err := r.naming.SelectOneHealthyInstance(vo.SelectOneHealthInstanceParam{
		ServiceName: r.serviceName,
		GroupName:   r.groupName,
	})
	if err != nil {
		return "", 0, fmt.Errorf("discover leader for %s: %w", r.serviceName, err)
	}
	if instance == nil {
		return "", 0, fmt.Errorf("no healthy leader instance for %s", r.serviceName)
	}
	return instance.Ip, int(instance.Port), nil
}
