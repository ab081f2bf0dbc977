package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "config/config.yaml"
	envPrefix         = "LIBCAT"
)

type DatabaseConfig struct {
	Driver   Dialect `yaml:"driver"`
	Host     string  `yaml:"host"`
	Port     int     `yaml:"port"`
	Username string  `yaml:"user"`
	Password string  `yaml:"password"`
	DBName   string  `yaml:"dbname"`
	// sqlite3 のときだけ使う
	Path string `yaml:"path"`
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LendingConfig struct {
	LoanDays   int `yaml:"loan_days"`
	ReturnWear int `yaml:"return_wear"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	HTTP        HTTPConfig     `yaml:"http"`
	DB          DatabaseConfig `yaml:"database"`
	Lending     LendingConfig  `yaml:"lending"`
	Certificate Certs          `yaml:"certificate"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// 環境変数 LIBCAT_* がファイルの値より優先
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if s := v.GetString("mode"); s != "" {
		cfg.Mode = s
	}
	if s := v.GetString("http_addr"); s != "" {
		cfg.HTTP.Addr = s
	}
	if s := v.GetString("db_driver"); s != "" {
		cfg.DB.Driver = Dialect(s)
	}
	if s := v.GetString("db_host"); s != "" {
		cfg.DB.Host = s
	}
	if n := v.GetInt("db_port"); n > 0 {
		cfg.DB.Port = n
	}
	if s := v.GetString("db_user"); s != "" {
		cfg.DB.Username = s
	}
	if s := v.GetString("db_password"); s != "" {
		cfg.DB.Password = s
	}
	if s := v.GetString("db_name"); s != "" {
		cfg.DB.DBName = s
	}
	if s := v.GetString("db_path"); s != "" {
		cfg.DB.Path = s
	}
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = MySQL
	}
	if c.DB.Driver == MySQL && c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Driver == SQLite && c.DB.Path == "" {
		c.DB.Path = "data/libcat.db"
	}
	if c.Lending.LoanDays <= 0 {
		c.Lending.LoanDays = 15
	}
	if c.Lending.ReturnWear <= 0 {
		c.Lending.ReturnWear = 20
	}
}

func (c *Config) validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release, got %q", c.Mode)
	}
	switch c.DB.Driver {
	case MySQL, SQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DB.Driver)
	}
	return nil
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	switch c.Driver {
	case SQLite:
		return connectSQLite(c.Path)
	default:
		return connectMySQL(c)
	}
}

func connectMySQL(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(string(MySQL), dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

func connectSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// _txlock=immediate: 書き込みTxを BEGIN IMMEDIATE で直列化する
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_journal_mode=WAL&_txlock=immediate", path)
	db, err := sql.Open(string(SQLite), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
