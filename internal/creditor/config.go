package creditor

// Cfg 对应 config/creditor-service.yaml
type Cfg struct {
	Name        string
	LogLevel    string `mapstructure:"log_level"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	Mysql struct {
		DSN         string
		MaxIdle     int `mapstructure:"max_idle"`
		MaxOpen     int `mapstructure:"max_open"`
		MaxLifetime int `mapstructure:"max_lifetime"` // 秒
	}

	Redis struct {
		Enabled  bool // 单实例部署可以关掉，调度器退化为无租约模式
		Addr     string
		Password string
		DB       int
	}

	Bitcoin struct {
		Host string
		User string
		Pass string
	}

	Ethereum struct {
		Url string
	}

	Confirm struct {
		IntervalSeconds int     `mapstructure:"interval_seconds"` // 周期间隔
		BatchSize       int     `mapstructure:"batch_size"`       // 每周期最多认领多少条
		Workers         int     // 并发查预言机的 worker 数
		ConfirmNum      int64   `mapstructure:"confirm_num"`   // 确认数阈值
		ExpiryHours     int     `mapstructure:"expiry_hours"`  // 申报过期窗口
		LeaseSeconds    int     `mapstructure:"lease_seconds"` // 认领租约时长
		OracleQPS       float64 `mapstructure:"oracle_qps"`    // 预言机限速
	}
}
