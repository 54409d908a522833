package main

import (
	"k8s.io/klog/v2"

	"github.com/raids-lab/staffdesk/cmd/staffdesk/helper"
)

// @title						Staffdesk API
// @version						1.0.0
// @description					This is the API server for Staffdesk, the request desk between client companies and labour vendors.
// @securityDefinitions.apikey	Bearer
// @in							header
// @name						Authorization
// @description					填入 'Bearer ${TOKEN}' 以访问受保护的接口，令牌由账号服务签发
func main() {
	// Initialize configuration
	configInit := helper.NewConfigInitializer()
	backendConfig := configInit.GetBackendConfig()

	// Load debug environment if needed
	if err := configInit.LoadDebugEnvironment(); err != nil {
		klog.Fatalf("Failed to load env: %s", err)
	}

	// Initialize register config and dependencies
	registerConfig, err := configInit.InitializeRegisterConfig()
	if err != nil {
		klog.Fatalf("Failed to register config: %s\n", err)
	}

	serverRunner := helper.NewServerRunner(backendConfig)

	// Start maintenance jobs
	serverRunner.StartCron(registerConfig)

	// Start HTTP server
	serverRunner.StartServer(registerConfig)
}
