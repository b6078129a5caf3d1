package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 表示应用程序的配置
type Config struct {
	Server struct {
		ListenAddr      string   `yaml:"listen_addr"`
		CORSOrigins     []string `yaml:"cors_origins"`
		ShutdownTimeout int      `yaml:"shutdown_timeout"` // 秒
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	FileLimits struct {
		MaxUploadSize int64 `yaml:"max_upload_size"` // MB
		MaxFileSize   int64 `yaml:"max_file_size"`   // MB
	} `yaml:"file_limits"`

	Preview struct {
		Lang              string   `yaml:"lang"`
		Title             string   `yaml:"title"`
		ScriptExcludeDirs []string `yaml:"script_exclude_dirs"`
	} `yaml:"preview"`

	Import struct {
		ExcludePatterns []string `yaml:"exclude_patterns"`
		TextExtensions  []string `yaml:"text_extensions"`
		TextFilenames   []string `yaml:"text_filenames"`
		TextMimeTypes   []string `yaml:"text_mime_types"`
		GithubMaxFiles  int      `yaml:"github_max_files"`
		GithubWorkers   int      `yaml:"github_workers"`
	} `yaml:"import"`

	ApiKeys struct {
		Github string `yaml:"github"`
	} `yaml:"api_keys"`

	Logging struct {
		Level      string `yaml:"level"`       // 日志级别: debug, info, warn, error
		OutputPath string `yaml:"output_path"` // 日志输出路径
	} `yaml:"logging"`

	// 运行时缓存
	textExtMap  map[string]struct{}
	textNameMap map[string]struct{}
	textMimeMap map[string]struct{}
}

var (
	config *Config
	once   sync.Once
)

// Load 加载配置文件，文件不存在时使用默认配置
func Load(configPath string) error {
	var err error
	once.Do(func() {
		config, err = Parse(configPath)
	})
	return err
}

// Get 返回配置实例
func Get() *Config {
	return config
}

// Parse 读取并解析配置文件，不影响全局实例
func Parse(configPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// 使用默认配置
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}
	cfg.applyEnv()
	cfg.init()
	return cfg, nil
}

// Default 返回默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.Server.ListenAddr = ":8005"
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Server.ShutdownTimeout = 10
	cfg.Database.Path = "./data/stelgent.db"
	cfg.FileLimits.MaxUploadSize = 50
	cfg.FileLimits.MaxFileSize = 2
	cfg.Preview.Lang = "en"
	cfg.Preview.Title = "Preview"
	cfg.Preview.ScriptExcludeDirs = []string{"node_modules"}
	cfg.Import.ExcludePatterns = []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/vendor/**",
		"**/dist/**",
		"**/build/**",
		"**/.DS_Store",
	}
	cfg.Import.TextExtensions = []string{
		".html", ".htm", ".css", ".js", ".mjs", ".ts", ".jsx", ".tsx", ".json",
		".md", ".txt", ".svg", ".xml", ".yaml", ".yml", ".go", ".py", ".sh",
	}
	cfg.Import.TextFilenames = []string{"README", "LICENSE", "Dockerfile", "Makefile", ".gitignore"}
	cfg.Import.TextMimeTypes = []string{
		"application/json",
		"application/xml",
		"application/javascript",
		"application/x-javascript",
		"image/svg+xml",
	}
	cfg.Import.GithubMaxFiles = 200
	cfg.Import.GithubWorkers = 4
	cfg.Logging.Level = "info"
	return cfg
}

// applyEnv 尝试从环境变量读取覆盖项
func (c *Config) applyEnv() {
	if v := os.Getenv("STELGENT_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("STELGENT_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("STELGENT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GITHUB_API_KEY"); v != "" {
		c.ApiKeys.Github = v
	}
}

// init 初始化映射
func (c *Config) init() {
	c.textExtMap = make(map[string]struct{})
	c.textNameMap = make(map[string]struct{})
	c.textMimeMap = make(map[string]struct{})
	for _, ext := range c.Import.TextExtensions {
		c.textExtMap[strings.ToLower(ext)] = struct{}{}
	}
	for _, name := range c.Import.TextFilenames {
		c.textNameMap[name] = struct{}{}
	}
	for _, mime := range c.Import.TextMimeTypes {
		c.textMimeMap[mime] = struct{}{}
	}
}

// IsTextExtension 检查扩展名是否为文本类型
func (c *Config) IsTextExtension(ext string) bool {
	_, ok := c.textExtMap[strings.ToLower(ext)]
	return ok
}

// IsTextFilename 检查无扩展名的文件名是否为常见文本文件
func (c *Config) IsTextFilename(name string) bool {
	_, ok := c.textNameMap[name]
	return ok
}

// IsTextContentTypeException 检查MIME类型是否为文本类型的例外
func (c *Config) IsTextContentTypeException(contentType string) bool {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	_, isException := c.textMimeMap[contentType]
	return isException
}

// GetMaxUploadSize 返回最大上传大小（字节）
func (c *Config) GetMaxUploadSize() int64 {
	return c.FileLimits.MaxUploadSize * 1024 * 1024
}

// GetMaxFileSize 返回最大文件大小（字节）
func (c *Config) GetMaxFileSize() int64 {
	return c.FileLimits.MaxFileSize * 1024 * 1024
}

// GetShutdownTimeout 返回优雅关闭的超时时间
func (c *Config) GetShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// GetGithubAPIKey 返回 GitHub API 密钥
func (c *Config) GetGithubAPIKey() string {
	return c.ApiKeys.Github
}

// GetLogLevel 返回日志级别
func (c *Config) GetLogLevel() string {
	if c.Logging.Level == "" {
		return "info" // 默认日志级别
	}
	return c.Logging.Level
}

// GetLogOutputPath 返回日志输出路径，为空时只输出到控制台
func (c *Config) GetLogOutputPath() string {
	return c.Logging.OutputPath
}
