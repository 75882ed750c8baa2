package config

// ServerConfig configures the read API.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"` // optional front-end directory served at /
	PageSize  int    `yaml:"page_size"`
}
