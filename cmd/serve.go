package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-integrations/app/controller"
	"github.com/zoobzio/clockz"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for the payments and plugin APIs.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	svc, cleanup := mustCreateServices()
	defer cleanup()
	cfg := svc.cfg

	paymentController := controller.NewPaymentController(svc.payments, clockz.RealClock)
	pluginController := controller.NewPluginController(svc.plugins, clockz.RealClock)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(paymentController, pluginController, echoInternalAuthMiddleware, cfg.App.ServiceName)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

// setupHTTPServer registers the routes. Gateway webhooks authenticate with
// their signature, so they sit outside the internal auth group.
func setupHTTPServer(
	paymentController *controller.PaymentController,
	pluginController *controller.PluginController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", paymentController.Health)
	e.POST("/api/payment/webhook", paymentController.Webhook)

	requireInternal := internalAuthMiddleware.RequireInternalAccess(appServiceName)

	payments := e.Group("/api/payment", requireInternal)
	payments.POST("/orders", paymentController.CreateOrder)
	payments.GET("/orders", paymentController.ListOrders)
	payments.GET("/orders/:orderId/status", paymentController.GetOrderStatus)
	payments.DELETE("/orders/:orderId", paymentController.CancelOrder)
	payments.POST("/process", paymentController.ProcessPayment)
	payments.POST("/refund", paymentController.Refund)
	payments.GET("/transactions", paymentController.ListTransactions)
	payments.GET("/methods", paymentController.ListPaymentMethods)
	payments.GET("/webhooks/failed", paymentController.ListFailedWebhooks)
	payments.POST("/webhooks/:webhookId/retry", paymentController.RetryWebhook)

	plugins := e.Group("/api/mcp/plugins", requireInternal)
	plugins.GET("", pluginController.ListPlugins)
	plugins.POST("/install", pluginController.Install)
	plugins.PUT("/:pluginId/config", pluginController.Configure)
	plugins.POST("/:pluginId/start", pluginController.Start)
	plugins.POST("/:pluginId/stop", pluginController.Stop)
	plugins.POST("/:pluginId/execute", pluginController.Execute)
	plugins.GET("/:pluginId/status", pluginController.Status)
	plugins.DELETE("/:pluginId", pluginController.Uninstall)

	mcp := e.Group("/api/mcp", requireInternal)
	mcp.POST("/connections", pluginController.Connect)
	mcp.GET("/connections", pluginController.ListConnections)
	mcp.DELETE("/connections/:connectionId", pluginController.Disconnect)
	mcp.POST("/exchange", pluginController.Exchange)

	return e
}
