package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Address  string
		HTTPPort string
	}
	Database struct {
		Driver string // postgres|mysql|sqlite|"" (без БД)
		DSN    string
	}
	Logging struct {
		Level  string
		Format string
		File   string
	}
	Sessions struct {
		// Активная сессия старше AbandonAfter помечается брошенной.
		AbandonAfter time.Duration
		// Завершённые сессии старше Retention удаляются насовсем.
		Retention time.Duration
		// Интервал фонового свипа; 0 — свип отключён.
		SweepInterval time.Duration
	}
}

// Load читает config.yaml (путь можно переопределить) и переменные окружения
// с префиксом ANTSUP_ (ANTSUP_DATABASE_DSN и т.п.).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.httpport", "8080")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("sessions.abandonafter", 24*time.Hour)
	v.SetDefault("sessions.retention", 90*24*time.Hour)
	v.SetDefault("sessions.sweepinterval", time.Duration(0))

	v.SetEnvPrefix("ANTSUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/antsupport")
	}
	if err := v.ReadInConfig(); err != nil {
		// Отсутствующий файл — штатно (дефолты + env), всё остальное,
		// включая битый yaml на поисковом пути, — ошибка.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
