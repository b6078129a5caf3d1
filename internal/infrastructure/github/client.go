package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stelgent-web/internal/domain/models"
	"stelgent-web/internal/domain/services"
	"stelgent-web/pkg/config"
	"stelgent-web/pkg/logger"
	"stelgent-web/pkg/types"
)

// DefaultBaseURL 是 GitHub REST API 地址
const DefaultBaseURL = "https://api.github.com"

// Content 表示 contents API 响应
type Content struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Client GitHub 仓库导入客户端
type Client struct {
	config     *config.Config
	processor  *services.FileProcessor
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建 GitHub 客户端实例
func NewClient(cfg *config.Config, processor *services.FileProcessor) *Client {
	return &Client{
		config:     cfg,
		processor:  processor,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithBaseURL 返回使用另一个 API 地址的客户端（GitHub Enterprise 或测试）
func (c *Client) WithBaseURL(baseURL string) *Client {
	clone := *c
	clone.baseURL = strings.TrimRight(baseURL, "/")
	return &clone
}

// FetchRepo 读取仓库默认分支（main，失败时 master）中的文本文件。
// 返回可导入的文件与被跳过的路径；token 为空时使用配置中的密钥。
func (c *Client) FetchRepo(ctx context.Context, owner, repo, token string) ([]models.FileDraft, []string, error) {
	if token == "" {
		token = c.config.GetGithubAPIKey()
	}
	logger.Info("开始获取 GitHub 仓库内容", zap.String("repo", owner+"/"+repo))

	var lastErr error
	for _, branch := range []string{"main", "master"} {
		entries, err := c.getTree(ctx, owner, repo, branch, token)
		if err != nil {
			logger.Warn("分支获取失败", zap.String("branch", branch), zap.Error(err))
			lastErr = err
			continue
		}
		return c.fetchContents(ctx, owner, repo, token, entries)
	}
	return nil, nil, fmt.Errorf("无法获取仓库内容: %w", lastErr)
}

// getTree 获取递归文件树
func (c *Client) getTree(ctx context.Context, owner, repo, branch, token string) ([]treeEntry, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.baseURL, owner, repo, branch)

	var treeResp struct {
		Tree      []treeEntry `json:"tree"`
		Truncated bool        `json:"truncated"`
	}
	if err := c.getJSON(ctx, apiURL, token, &treeResp); err != nil {
		return nil, fmt.Errorf("请求仓库树失败: %w", err)
	}
	if treeResp.Truncated {
		logger.Warn("仓库树被截断，可能不包含所有文件", zap.String("repo", owner+"/"+repo))
	}
	return treeResp.Tree, nil
}

// fetchContents 并发下载筛选后的文件，结果保持树中的顺序
func (c *Client) fetchContents(ctx context.Context, owner, repo, token string, entries []treeEntry) ([]models.FileDraft, []string, error) {
	var paths, skipped []string
	for _, item := range entries {
		if item.Type != "blob" {
			continue
		}
		if types.ValidatePath(item.Path) != nil ||
			c.processor.IsExcluded(item.Path, uint64(item.Size)) ||
			!c.processor.IsLikelyTextFile(item.Path) {
			skipped = append(skipped, item.Path)
			continue
		}
		paths = append(paths, item.Path)
	}

	if limit := c.config.Import.GithubMaxFiles; limit > 0 && len(paths) > limit {
		logger.Warn("文件过多，超出部分被跳过", zap.Int("files", len(paths)), zap.Int("limit", limit))
		skipped = append(skipped, paths[limit:]...)
		paths = paths[:limit]
	}

	contents := make([]*string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if workers := c.config.Import.GithubWorkers; workers > 0 {
		g.SetLimit(workers)
	}
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			content, err := c.getFileContent(gctx, owner, repo, p, token)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("获取文件内容失败", zap.String("path", p), zap.Error(err))
				return nil
			}
			contents[i] = &content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	drafts := make([]models.FileDraft, 0, len(paths))
	for i, p := range paths {
		if contents[i] == nil {
			skipped = append(skipped, p)
			continue
		}
		drafts = append(drafts, models.FileDraft{Path: p, Type: models.FileTypeFile, Content: *contents[i]})
	}
	logger.Info("完成获取仓库内容", zap.Int("files", len(drafts)), zap.Int("skipped", len(skipped)))
	return drafts, skipped, nil
}

// getFileContent 获取单个文件内容
func (c *Client) getFileContent(ctx context.Context, owner, repo, path, token string) (string, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, path)

	var content Content
	if err := c.getJSON(ctx, apiURL, token, &content); err != nil {
		return "", err
	}

	// contents API 返回的 base64 按行折断
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("解码内容失败: %w", err)
	}
	if limit := c.config.GetMaxFileSize(); limit > 0 && int64(len(decoded)) > limit {
		return "", fmt.Errorf("文件过大: %d 字节", len(decoded))
	}
	return string(decoded), nil
}

// getJSON 发送 GET 请求并解码 JSON 响应
func (c *Client) getJSON(ctx context.Context, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "Stelgent-Web/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GitHub API 请求失败: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

var repoURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`),
	regexp.MustCompile(`github\.com/([^/]+)/([^/]+)`),
}

// ParseRepoURL 解析 GitHub 仓库 URL
func ParseRepoURL(url string) (owner, repo string, err error) {
	for _, re := range repoURLPatterns {
		matches := re.FindStringSubmatch(strings.TrimSpace(url))
		if len(matches) == 3 {
			return matches[1], matches[2], nil
		}
	}
	return "", "", fmt.Errorf("无效的 GitHub 仓库 URL: %q", url)
}
