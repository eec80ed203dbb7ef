// =============================================================================
// ファイル: config.go（設定管理）
// 概要: 制御コアサーバーの全設定を管理するパッケージ
//
// 【使用ライブラリ: Viper（バイパー）】
//   Viper は Go で最も人気のある設定管理ライブラリ。
//   環境変数、設定ファイル（YAML, JSON, TOML）、リモート設定など
//   多様なソースから設定を読み込める。
//
// 固定のプロトコル定数（ロックTTL、鮮度タイムアウト、掃除間隔、ノードキャッシュ
// TTLなど）は環境ごとに変える必要がないため、Viper管理の対象にはせず、各パッケージ
// 内の素の Go の const として定義してある（例: store.LockTTL, store.StaleTimeout,
// sweeper.Interval, nodecache.KVTTL）。ここで扱うのは純粋にデプロイごとに変わり得る値のみ。
// =============================================================================
package config

import (
	// viper: 設定管理ライブラリ。
	"github.com/spf13/viper"
)

// Config はサーバー起動時に読み込む全設定を保持するルート構造体。
type Config struct {
	DatabaseURL    string // DATABASE_URL — 外部のユーザー/認証ストア（本サービスは所有しない）
	RedisURL       string // REDIS_URL — ノードキャッシュと監査ストリームに使うKV
	JWTSecret      string // JWT_SECRET — ベアラートークンの署名鍵
	JWTExpiryHours int    // JWT_EXPIRY_HOURS — 発行するトークンの有効期限（時間）
	ServerAddress  string // SERVER_ADDRESS — HTTPリスナーのアドレス
	RobotAPIKey    string // ROBOT_API_KEY — ロボットからのテレメトリ/登録投稿を認証する鍵
	LogLevel       string // LOG_LEVEL
}

// Load reads configuration from the environment, falling back to the
// defaults the specification names when a variable is unset.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:3003")
	v.SetDefault("ROBOT_API_KEY", "secret-robot-key")
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		DatabaseURL:    v.GetString("DATABASE_URL"),
		RedisURL:       v.GetString("REDIS_URL"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		JWTExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		ServerAddress:  v.GetString("SERVER_ADDRESS"),
		RobotAPIKey:    v.GetString("ROBOT_API_KEY"),
		LogLevel:       v.GetString("LOG_LEVEL"),
	}

	return cfg, nil
}
