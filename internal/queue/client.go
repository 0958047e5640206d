package queue

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/voucher-ledger/internal/config"
	"github.com/dujiao-next/voucher-ledger/internal/constants"

	"github.com/hibiken/asynq"
)

// DefaultQueue 默认队列名称
const DefaultQueue = constants.QueueDefault

const (
	defaultRedisHost   = "127.0.0.1"
	defaultRedisPort   = 6379
	defaultConcurrency = 10
)

// taskPolicy 任务投递策略，Unique 窗口内的重复投递合并为一次
type taskPolicy struct {
	unique   time.Duration
	maxRetry int
}

var taskPolicies = map[string]taskPolicy{
	// 窗口内的多次账本写入只触发一次重算
	TaskStatisticsRefresh: {unique: 5 * time.Second, maxRetry: 3},
	TaskLedgerAlertScan:   {unique: time.Minute, maxRetry: 1},
}

// Client asynq 投递端，未启用时所有投递为空操作
type Client struct {
	inner *asynq.Client
	queue string
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{queue: DefaultQueue}, nil
	}
	return &Client{inner: asynq.NewClient(buildRedisOpt(cfg)), queue: DefaultQueue}, nil
}

// Enabled 是否连接了队列
func (c *Client) Enabled() bool {
	return c != nil && c.inner != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.inner.Close()
}

// EnqueueStatisticsRefresh 投递统计缓存重算任务
func (c *Client) EnqueueStatisticsRefresh(payload StatisticsRefreshPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewStatisticsRefreshTask(payload)
	if err != nil {
		return err
	}
	return c.dispatch(task)
}

// EnqueueLedgerAlertScan 投递库存与到期告警扫描任务
func (c *Client) EnqueueLedgerAlertScan(payload LedgerAlertScanPayload) error {
	if !c.Enabled() {
		return nil
	}
	task, err := NewLedgerAlertScanTask(payload)
	if err != nil {
		return err
	}
	return c.dispatch(task)
}

func (c *Client) dispatch(task *asynq.Task) error {
	opts := []asynq.Option{asynq.Queue(c.queue)}
	if policy, ok := taskPolicies[task.Type()]; ok {
		opts = append(opts, asynq.Unique(policy.unique), asynq.MaxRetry(policy.maxRetry))
	}
	_, err := c.inner.Enqueue(task, opts...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// BuildServerConfig 生成消费端 Redis 连接与并发配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	serverCfg := asynq.Config{
		Concurrency: defaultConcurrency,
		Queues:      map[string]int{DefaultQueue: 1},
	}
	if cfg != nil {
		if cfg.Concurrency > 0 {
			serverCfg.Concurrency = cfg.Concurrency
		}
		if len(cfg.Queues) > 0 {
			serverCfg.Queues = cfg.Queues
		}
	}
	return buildRedisOpt(cfg), serverCfg
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	if cfg == nil {
		return asynq.RedisClientOpt{Addr: net.JoinHostPort(defaultRedisHost, strconv.Itoa(defaultRedisPort))}
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = defaultRedisHost
	}
	port := cfg.Port
	if port <= 0 {
		port = defaultRedisPort
	}
	return asynq.RedisClientOpt{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
