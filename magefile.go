//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	redisContainer  = "stockdata-redis-dev"
	influxContainer = "stockdata-influxdb-dev"
)

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("StockData 构建系统")
	fmt.Println("==================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build          - 构建所有二进制文件")
	fmt.Println("  mage test           - 运行所有测试")
	fmt.Println("  mage testRace       - 开启竞态检测运行测试")
	fmt.Println("  mage coverage       - 生成测试覆盖率报告")
	fmt.Println("  mage lint           - 运行代码检查")
	fmt.Println("  mage clean          - 清理构建产物")
	fmt.Println("  mage docker:env     - 启动 Redis 与 InfluxDB")
	fmt.Println("  mage docker:down    - 停止 Redis 与 InfluxDB")
}

// Build 构建所有二进制文件
func Build() error {
	mg.Deps(Clean)

	targets := []struct {
		name string
		path string
	}{
		{"stockdata", "./cmd/stockdata"},
		{"api_server", "./cmd/api_server"},
		{"fetcher", "./cmd/fetcher"},
	}

	fmt.Println("🚀 开始构建 StockData 组件...")

	for _, target := range targets {
		fmt.Printf("📦 构建 %s...\n", target.name)
		output := filepath.Join("./dist", target.name)
		if runtime.GOOS == "windows" {
			output += ".exe"
		}

		cmd := exec.Command("go", "build", "-o", output, target.path)
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("构建 %s 失败: %v\n输出: %s", target.name, err, string(out))
		}

		if info, err := os.Stat(output); err == nil {
			fmt.Printf("   ✅ %s: %d MB\n", target.name, info.Size()/1024/1024)
		}
	}

	fmt.Println("🎉 所有组件构建完成!")
	return nil
}

// Test 运行所有测试
func Test() error {
	fmt.Println("🧪 运行测试...")
	return sh.RunV("go", "test", "./...", "-timeout=5m")
}

// TestRace 开启竞态检测运行测试
func TestRace() error {
	fmt.Println("🧪 运行竞态检测...")
	return sh.RunV("go", "test", "-race", "./pkg/...", "./cmd/...", "-timeout=10m")
}

type Docker mg.Namespace

// Env 启动基础环境服务 (redis, influxdb)
func (Docker) Env() error {
	fmt.Println("🚀 启动基础环境服务 (redis, influxdb)...")
	if err := sh.RunV("docker", "run", "-d", "--rm", "--name", redisContainer,
		"-p", "6379:6379", "redis:7-alpine"); err != nil {
		return err
	}
	return sh.RunV("docker", "run", "-d", "--rm", "--name", influxContainer,
		"-p", "8086:8086",
		"-e", "DOCKER_INFLUXDB_INIT_MODE=setup",
		"-e", "DOCKER_INFLUXDB_INIT_USERNAME=stockdata",
		"-e", "DOCKER_INFLUXDB_INIT_PASSWORD=stockdata-dev",
		"-e", "DOCKER_INFLUXDB_INIT_ORG=stockdata",
		"-e", "DOCKER_INFLUXDB_INIT_BUCKET=market",
		"-e", "DOCKER_INFLUXDB_INIT_ADMIN_TOKEN=stockdata-dev-token",
		"influxdb:2.7")
}

// Down 停止基础环境服务
func (Docker) Down() error {
	fmt.Println("🛑 停止基础环境服务...")
	for _, name := range []string{redisContainer, influxContainer} {
		if err := sh.Run("docker", "stop", name); err != nil {
			fmt.Printf("警告: 停止 %s 失败: %v\n", name, err)
		}
	}
	return nil
}

// Clean 清理构建产物
func Clean() error {
	fmt.Println("🧹 清理构建产物...")

	if err := os.MkdirAll("./dist", 0755); err != nil {
		return fmt.Errorf("创建 dist 目录失败: %v", err)
	}
	files, err := filepath.Glob("./dist/*")
	if err != nil {
		return fmt.Errorf("查找文件失败: %v", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			fmt.Printf("警告: 无法删除文件 %s: %v\n", file, err)
		}
	}
	if err := os.RemoveAll("./reports"); err != nil {
		fmt.Printf("警告: 清理报告目录失败: %v\n", err)
	}

	fmt.Println("✅ 清理完成!")
	return nil
}

// Lint 运行 gofmt 与 go vet
func Lint() error {
	fmt.Println("🔍 运行代码检查...")

	out, err := sh.Output("gofmt", "-l", "./cmd", "./pkg")
	if err != nil {
		return fmt.Errorf("gofmt 检查失败: %v", err)
	}
	if out != "" {
		return fmt.Errorf("以下文件需要格式化:\n%s", out)
	}
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("go vet 失败: %v", err)
	}

	fmt.Println("✅ 代码检查通过!")
	return nil
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	fmt.Println("📈 生成测试覆盖率报告...")

	if err := os.MkdirAll("./reports", 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %v", err)
	}
	if err := sh.RunV("go", "test", "./pkg/...", "./cmd/...",
		"-coverprofile=./reports/coverage.out", "-covermode=atomic"); err != nil {
		return fmt.Errorf("生成覆盖率失败: %v", err)
	}
	if err := sh.Run("go", "tool", "cover", "-html=./reports/coverage.out", "-o", "./reports/coverage.html"); err != nil {
		return fmt.Errorf("生成HTML报告失败: %v", err)
	}
	if err := sh.RunV("go", "tool", "cover", "-func=./reports/coverage.out"); err != nil {
		return fmt.Errorf("显示覆盖率失败: %v", err)
	}

	abs, err := filepath.Abs("./reports/coverage.html")
	if err != nil {
		abs = "./reports/coverage.html"
	}
	fmt.Println("✅ 覆盖率报告生成完成!")
	fmt.Println("   详细报告: file://" + abs)
	return nil
}
