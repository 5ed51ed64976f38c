// Command leaderdemo runs one participant in a leader election, wiring
// the election outcome to service discovery, a message bus, a heartbeat
// key, and an audit trail — none of which the election package itself
// knows anything about.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/mlindqvist/zkdistributed/appkit"
	"github.com/mlindqvist/zkdistributed/audit"
	"github.com/mlindqvist/zkdistributed/election"
	"github.com/mlindqvist/zkdistributed/eventbus"
	"github.com/mlindqvist/zkdistributed/heartbeat"
	"github.com/mlindqvist/zkdistributed/logger"
	"github.com/mlindqvist/zkdistributed/outbox"
	"github.com/mlindqvist/zkdistributed/registry"
	"github.com/mlindqvist/zkdistributed/utils"
	"github.com/mlindqvist/zkdistributed/zkclient"
	"github.com/mlindqvist/zkdistributed/zkconfig"
)

const serviceName = "leaderdemo"

// deps bundles everything Assemble builds and Register wires up.
type deps struct {
	client   *zkclient.Real
	cand     *election.Candidate
	observer *election.Observer

	reg       *registry.LeaderRegistry
	bus       *eventbus.Publisher
	out       *outbox.Service
	beacon    *heartbeat.Beacon
	auditDB   audit.Store
	nodeID    string
	electName string
}

func main() {
	jaegerEndpoint := getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")

	app, err := appkit.New(appkit.Info[*deps]{
		ServiceName: serviceName,
		Assemble:    assemble,
		Register:    register,
	}, jaegerEndpoint)
	if err != nil {
		fmt.Fprintln(os.Stderr, "assembly failed:", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}

func assemble(_ appkit.Context) (*deps, error) {
	cfg := zkconfig.Default()
	if path := os.Getenv("ZKDISTRIBUTED_CONFIG"); path != "" {
		loaded, err := zkconfig.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = loaded
	}

	client, err := zkclient.Connect(cfg.Zookeeper.Servers, cfg.Zookeeper.SessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper: %w", err)
	}

	ip, err := utils.GetOutboundIP()
	if err != nil {
		return nil, fmt.Errorf("determine outbound ip: %w", err)
	}
	port, _ := strconv.Atoi(getEnv("PORT", "8080"))
	nodeID := fmt.Sprintf("%s:%d", ip, port)

	serverConfigs, err := nacosServerConfigs(getEnv("NACOS_SERVER_ADDRS", "localhost:8848"))
	if err != nil {
		return nil, fmt.Errorf("parse nacos server addrs: %w", err)
	}
	clientConfig := nacosClientConfig(getEnv("NACOS_NAMESPACE", ""))
	reg, err := registry.NewLeaderRegistry(serverConfigs, &clientConfig, getEnv("NACOS_GROUP", ""), serviceName, ip, port)
	if err != nil {
		return nil, fmt.Errorf("init nacos registry: %w", err)
	}

	bus := eventbus.NewPublisher(splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")), eventbus.LeaderChangeTopic)

	db, err := gorm.Open(mysql.Open(getEnv("MYSQL_DSN", "")), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	auditDB, err := audit.NewGormStore(db, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("migrate audit store: %w", err)
	}
	outStore, err := outbox.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("migrate outbox store: %w", err)
	}
	outWriter := &kafka.Writer{Addr: kafka.TCP(splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092"))...), Topic: eventbus.LeaderChangeTopic}
	out := outbox.NewService(outStore, outWriter)

	beacon, err := heartbeat.NewBeacon(getEnv("REDIS_ADDRS", "localhost:6379"), "leaderdemo:heartbeat", 10*time.Second, nodeID)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	electName := getEnv("ELECTION_NAME", "leaderdemo")

	d := &deps{
		client:    client,
		reg:       reg,
		bus:       bus,
		out:       out,
		beacon:    beacon,
		auditDB:   auditDB,
		nodeID:    nodeID,
		electName: electName,
	}

	ctx := context.Background()

	cand, err := election.NewCandidate(client, cfg.Election.RootNode, electName,
		election.WithData([]byte(nodeID)),
		election.OnWinningElection(func() error {
			d.beacon.Start(ctx)
			if err := d.reg.MarkLeader(); err != nil {
				return err
			}
			d.recordTransition(ctx, "won")
			return nil
		}),
		election.OnLosingElection(func() {
			d.beacon.Stop(ctx)
			if err := d.reg.MarkNotLeader(); err != nil {
				logger.Logger.Warn().Err(err).Msg("failed to deregister from nacos after losing election")
			}
			d.recordTransition(ctx, "lost")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create candidate: %w", err)
	}
	d.cand = cand

	observer, err := election.NewObserver(client, cfg.Election.RootNode, electName,
		election.OnNewLeader(func(data []byte) { d.recordObservation(ctx, "leader_alive", string(data)) }),
		election.OnLeadersDeath(func() { d.recordObservation(ctx, "leader_dead", "") }),
	)
	if err != nil {
		return nil, fmt.Errorf("create observer: %w", err)
	}
	d.observer = observer

	return d, nil
}

func register(app *appkit.Application, d *deps) error {
	app.AddTask(func(ctx context.Context) error {
		return d.cand.Vote(ctx)
	}, func(ctx context.Context) error {
		d.cand.Close()
		return nil
	})

	app.AddTask(func(ctx context.Context) error {
		return d.observer.Observe(ctx)
	}, func(ctx context.Context) error {
		d.observer.Close()
		return nil
	})

	forwarder := outbox.NewForwarder(d.out, 2*time.Second)
	app.AddTask(forwarder.Start, nil)

	app.AddTask(nil, func(ctx context.Context) error {
		d.client.Close()
		return nil
	})

	return nil
}

func (d *deps) recordTransition(ctx context.Context, transition string) {
	logger.Ctx(ctx).Info().Str("election", d.electName).Str("transition", transition).Msg("leadership transition")

	ev := eventbus.LeaderChangeEvent{
		Election:   d.electName,
		NodeID:     d.nodeID,
		Transition: transition,
		OccurredAt: time.Now().UnixMilli(),
	}
	if err := d.bus.Publish(ctx, ev); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to publish leader-changed event")
	}

	payload, _ := json.Marshal(ev)
	if err := d.out.Enqueue(ctx, eventbus.LeaderChangeTopic, d.electName, payload); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to enqueue leader-changed outbox message")
	}

	_ = d.auditDB.Record(ctx, audit.LeadershipEvent{
		Election:   d.electName,
		NodeID:     d.nodeID,
		Transition: transition,
		OccurredAt: time.Now(),
	})
}

func (d *deps) recordObservation(ctx context.Context, transition, data string) {
	logger.Ctx(ctx).Info().Str("election", d.electName).Str("transition", transition).Str("leader", data).Msg("observed leadership change")
	_ = d.auditDB.Record(ctx, audit.LeadershipEvent{
		Election:   d.electName,
		NodeID:     d.nodeID,
		Transition: transition,
		VotePath:   data,
		OccurredAt: time.Now(),
	})
}

func nacosServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	var configs []constant.ServerConfig
	for _, addr := range splitCSV(addrs) {
		host, portStr, err := splitHostPort(addr)
		if err != nil {
			return nil, err
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid nacos port %q: %w", portStr, err)
		}
		configs = append(configs, *constant.NewServerConfig(host, port))
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("no nacos server addresses configured")
	}
	return configs, nil
}

func nacosClientConfig(namespace string) constant.ClientConfig {
	return *constant.NewClientConfig(
		constant.WithNamespaceId(namespace),
		constant.WithTimeoutMs(5000),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/leaderdemo/log"),
		constant.WithCacheDir("/tmp/leaderdemo/cache"),
		constant.WithLogLevel("warn"),
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func splitHostPort(addr string) (host, port string, err error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("address %q is missing a port", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}
