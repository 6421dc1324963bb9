// @title           Roofline API
// @version         1.0
// @description     Roofline CRM backend - leads, measurements, quotes, invoices, material orders and work orders for roofing contractors.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    https://roofline.example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      https://api.roofline.example.com

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @schemes http https
package main

import (
	_ "backend/docs"
	"backend/handlers"
	"backend/services"
	"backend/storage"
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var cronRunning int32

func CORSConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{
		"https://app.roofline.example.com",
		"https://roofline.example.com",
		"http://localhost:8080",
		"http://localhost:3000",
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Content-Type", "Content-Length", "Accept-Encoding",
		"Accept", "Origin", "X-Requested-With", "Authorization", "User-Agent",
		"Cache-Control", "Referer",
		"Access-Control-Request-Method", "Access-Control-Request-Headers",
		"Accept-Language", "DNT", "Connection",
	}
	corsConfig.AllowMethods = []string{
		"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD", "PATCH",
	}
	corsConfig.ExposeHeaders = []string{
		"Content-Length", "Authorization", "Content-Type", "Content-Disposition",
	}
	corsConfig.MaxAge = 12 * time.Hour // Cache preflight requests for 12 hours
	return corsConfig
}

// markOverdueInvoices flips unpaid invoices past their due date to overdue
// so dashboards and payment rollups pick them up.
func markOverdueInvoices(db *sql.DB) error {
	result, err := db.Exec(`
		UPDATE invoice SET payment_status = 'overdue', updated_at = NOW()
		WHERE payment_status IN ('unpaid', 'partial')
		  AND due_date IS NOT NULL
		  AND due_date < NOW()`)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		log.Printf("[invoice-cron] marked %d invoices overdue", rows)
	}
	return nil
}

// sendStaleLeadReminders nudges the assigned rep about leads that have sat
// in the early pipeline for two weeks. The NOT EXISTS guard keeps it from
// stacking a new reminder every night.
func sendStaleLeadReminders(db *sql.DB) error {
	result, err := db.Exec(`
		INSERT INTO notifications (user_id, message, status, action, created_at, updated_at)
		SELECT l.assigned_to,
			   'Lead "' || l.customer_name || '" has had no activity for 14 days',
			   'unread',
			   '/leads/' || l.id,
			   NOW(), NOW()
		FROM leads l
		WHERE l.assigned_to IS NOT NULL
		  AND l.status IN ('new', 'contacted')
		  AND l.updated_at < NOW() - INTERVAL '14 days'
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.user_id = l.assigned_to
			  AND n.action = '/leads/' || l.id
			  AND n.created_at > NOW() - INTERVAL '7 days'
		  )`)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		log.Printf("[lead-cron] created %d stale lead reminders", rows)
	}
	return nil
}

func safeGo(
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	fn func(context.Context) error,
	cronLogger *log.Logger,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in %s: %v\n%s", name, r, debug.Stack())
				if cronLogger != nil {
					cronLogger.Printf("PANIC in %s: %v\n%s", name, r, debug.Stack())
				}
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("%s failed: %v", name, err)
			if cronLogger != nil {
				cronLogger.Printf("%s failed: %v", name, err)
			}
		} else {
			log.Printf("%s completed successfully", name)
			if cronLogger != nil {
				cronLogger.Printf("%s completed successfully", name)
			}
		}
	}()
}

func main() {
	db := storage.InitDB()
	gdb := storage.InitGormDB()

	db.SetMaxOpenConns(15)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	emailSvc := services.NewEmailService(db)

	// Push notifications via FCM HTTP v1. The service is optional; without
	// credentials the handlers answer 503 on device token routes and skip
	// push sends elsewhere.
	credentialsPath := os.Getenv("FCM_CREDENTIALS_PATH")
	if credentialsPath == "" {
		credentialsPath = "firebase-credentials.json"
	}
	push, err := services.NewPushService(credentialsPath, db)
	if err != nil {
		log.Printf("Warning: Failed to initialize push service: %v. Push notifications will be disabled.", err)
		push = nil
	} else {
		log.Println("Push service initialized successfully")
	}

	exportManager := handlers.NewExportJobManager(db, gdb)

	// Setup cron job to run maintenance daily at 6:30 AM
	c := cron.New(
		cron.WithLogger(cron.VerbosePrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))),
	)

	// Open a file for cron error logging
	cronLogFile, err := os.OpenFile("cron_errors.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("Failed to open cron error log file: %v", err)
	}
	cronLogger := log.New(cronLogFile, "CRON_ERROR: ", log.LstdFlags)

	_, err = c.AddFunc("30 6 * * *", func() {
		// ------------------ CRON LOCK ------------------
		if !atomic.CompareAndSwapInt32(&cronRunning, 0, 1) {
			log.Println("Previous cron still running. Skipping this run.")
			if cronLogger != nil {
				cronLogger.Println("Previous cron still running. Skipping this run.")
			}
			return
		}
		defer atomic.StoreInt32(&cronRunning, 0)

		log.Println("Starting daily maintenance cron job (6:30 AM)")
		if cronLogger != nil {
			cronLogger.Println("Starting daily maintenance cron job (6:30 AM)")
		}

		// ------------------ TIMEOUT CONTEXT ------------------
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()

		var wg sync.WaitGroup

		safeGo(ctx, &wg, "CleanupExpiredSessions", func(ctx context.Context) error {
			return storage.CleanupExpiredSessions(db)
		}, cronLogger)

		safeGo(ctx, &wg, "MarkOverdueInvoices", func(ctx context.Context) error {
			return markOverdueInvoices(db)
		}, cronLogger)

		safeGo(ctx, &wg, "StaleLeadReminders", func(ctx context.Context) error {
			return sendStaleLeadReminders(db)
		}, cronLogger)

		// ------------------ WAIT WITH CANCELLATION ------------------

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Println("All cron jobs finished")
			if cronLogger != nil {
				cronLogger.Println("All cron jobs finished")
			}
		case <-ctx.Done():
			log.Println("Cron timeout reached, jobs cancelled")
			if cronLogger != nil {
				cronLogger.Println("Cron timeout reached, jobs cancelled")
			}
		}

		log.Println("Daily cron cycle completed")
		if cronLogger != nil {
			cronLogger.Println("Daily cron cycle completed")
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule daily maintenance cron job: %v", err)
	}

	c.Start()

	r := gin.Default()
	r.MaxMultipartMemory = 8 << 20

	r.Use(cors.New(CORSConfig()))

	// ==================== 1. AUTH & SESSIONS ====================
	r.POST("/api/login", handlers.LoginHandler(db))
	r.POST("/api/refresh", handlers.RefreshTokenHandler(db))

	auth := r.Group("/api", handlers.SessionAuth(db))

	auth.POST("/logout", handlers.LogoutHandler(db))
	auth.GET("/sessions", handlers.GetSessionsHandler(db))
	auth.GET("/validate_session", handlers.ValidateSessionHandler(db))

	// ==================== 2. USERS ====================
	auth.GET("/users", handlers.RequirePermission("view_users"), handlers.GetUsersHandler(db))
	auth.GET("/users/:id", handlers.RequirePermission("view_users"), handlers.GetUserHandler(db))
	auth.POST("/users", handlers.RequirePermission("create_users"), handlers.CreateUserHandler(db, gdb, emailSvc))
	auth.PUT("/users/:id", handlers.RequirePermission("edit_users"), handlers.UpdateUserHandler(db, gdb))
	auth.PUT("/users/:id/suspend", handlers.RequirePermission("suspend_users"), handlers.SuspendUserHandler(db, gdb))
	auth.PUT("/users/password", handlers.ChangePasswordHandler(db))

	// ==================== 3. PERMISSIONS ====================
	auth.GET("/permissions/catalog", handlers.RequirePermission("manage_permissions"), handlers.GetPermissionCatalogHandler())
	auth.GET("/users/:id/permissions", handlers.RequirePermission("manage_permissions"), handlers.GetUserPermissionsHandler(db))
	auth.PUT("/users/:id/permissions", handlers.RequirePermission("manage_permissions"), handlers.UpdateUserPermissionsHandler(db, gdb))
	auth.GET("/permission_templates", handlers.RequirePermission("manage_permissions"), handlers.GetPermissionTemplatesHandler(db))
	auth.POST("/permission_templates", handlers.RequirePermission("manage_permissions"), handlers.CreatePermissionTemplateHandler(db, gdb))
	auth.PUT("/permission_templates/:id", handlers.RequirePermission("manage_permissions"), handlers.UpdatePermissionTemplateHandler(db, gdb))
	auth.DELETE("/permission_templates/:id", handlers.RequirePermission("manage_permissions"), handlers.DeletePermissionTemplateHandler(db, gdb))
	auth.POST("/permission_templates/:id/apply", handlers.RequirePermission("manage_permissions"), handlers.ApplyPermissionTemplateHandler(db, gdb))

	// ==================== 4. LEADS ====================
	auth.GET("/leads", handlers.RequirePermission("view_leads"), handlers.GetLeadsHandler(db))
	auth.GET("/leads/:id", handlers.RequirePermission("view_leads"), handlers.GetLeadHandler(db))
	auth.POST("/leads", handlers.RequirePermission("create_leads"), handlers.CreateLeadHandler(db, gdb))
	auth.PUT("/leads/:id", handlers.RequirePermission("edit_leads"), handlers.UpdateLeadHandler(db, gdb))
	auth.PUT("/leads/:id/status", handlers.RequirePermission("edit_leads"), handlers.UpdateLeadStatusHandler(db, gdb))
	auth.PUT("/leads/:id/assign", handlers.RequirePermission("assign_leads"), handlers.AssignLeadHandler(db, gdb, push))
	auth.DELETE("/leads/:id", handlers.RequirePermission("delete_leads"), handlers.DeleteLeadHandler(db, gdb))

	// ==================== 5. MEASUREMENTS ====================
	auth.GET("/leads/:id/measurements", handlers.RequirePermission("view_measurements"), handlers.GetMeasurementsHandler(db))
	auth.GET("/leads/:id/measurements/latest", handlers.RequirePermission("view_measurements"), handlers.GetLatestMeasurementHandler(db))
	auth.POST("/leads/:id/measurements", handlers.RequirePermission("create_measurements"), handlers.CreateMeasurementHandler(db, gdb))

	// ==================== 6. MATERIALS & LOCATION PRICES ====================
	auth.GET("/materials", handlers.RequirePermission("view_materials"), handlers.GetMaterialsHandler(db))
	auth.POST("/materials", handlers.RequirePermission("manage_materials"), handlers.CreateMaterialHandler(db, gdb))
	auth.PUT("/materials/:id", handlers.RequirePermission("manage_materials"), handlers.UpdateMaterialHandler(db, gdb))
	auth.GET("/materials/:id/location_prices", handlers.RequirePermission("view_materials"), handlers.GetLocationPricesHandler(db))
	auth.PUT("/materials/:id/location_prices", handlers.RequirePermission("manage_materials"), handlers.SetLocationPriceHandler(db, gdb))
	auth.DELETE("/materials/:id/location_prices/:location_id", handlers.RequirePermission("manage_materials"), handlers.DeleteLocationPriceHandler(db, gdb))

	// ==================== 7. TEMPLATES ====================
	auth.GET("/templates", handlers.RequirePermission("view_templates"), handlers.GetTemplatesHandler(db))
	auth.GET("/templates/:id", handlers.RequirePermission("view_templates"), handlers.GetTemplateHandler(db))
	auth.POST("/templates", handlers.RequirePermission("manage_templates"), handlers.CreateTemplateHandler(db, gdb))
	auth.PUT("/templates/:id", handlers.RequirePermission("manage_templates"), handlers.UpdateTemplateHandler(db, gdb))
	auth.DELETE("/templates/:id", handlers.RequirePermission("manage_templates"), handlers.DeleteTemplateHandler(db, gdb))

	// ==================== 8. QUOTES ====================
	auth.GET("/quotes", handlers.RequirePermission("view_quotes"), handlers.GetQuotesHandler(db))
	auth.GET("/quotes/:id", handlers.RequirePermission("view_quotes"), handlers.GetQuoteHandler(db))
	auth.POST("/quotes", handlers.RequirePermission("create_quotes"), handlers.CreateQuoteHandler(db, gdb))
	auth.PUT("/quotes/:id", handlers.RequirePermission("edit_quotes"), handlers.UpdateQuoteHandler(db, gdb))
	auth.POST("/quotes/:id/import_template", handlers.RequirePermission("edit_quotes"), handlers.ImportTemplateHandler(db, gdb))
	auth.POST("/quotes/:id/accept", handlers.RequirePermission("accept_quotes"), handlers.AcceptQuoteHandler(db, gdb, push))
	auth.POST("/quotes/:id/send", handlers.RequirePermission("send_quotes"), handlers.SendQuoteHandler(db, gdb, emailSvc))
	auth.GET("/quotes/:id/variance", handlers.RequirePermission("view_quotes"), handlers.GetQuoteVarianceHandler(db))
	auth.GET("/quotes/:id/pdf", handlers.RequirePermission("view_quotes"), handlers.GenerateQuotePDF(db))
	auth.DELETE("/quotes/:id", handlers.RequirePermission("delete_quotes"), handlers.DeleteQuoteHandler(db, gdb))

	// ==================== 9. INVOICES ====================
	auth.GET("/invoices", handlers.RequirePermission("view_invoices"), handlers.GetInvoicesHandler(db))
	auth.GET("/invoices/:id", handlers.RequirePermission("view_invoices"), handlers.GetInvoiceHandler(db))
	auth.POST("/invoices", handlers.RequirePermission("create_invoices"), handlers.CreateInvoiceHandler(db, gdb))
	auth.POST("/invoices/from_quote", handlers.RequirePermission("create_invoices"), handlers.CreateInvoiceFromQuoteHandler(db, gdb))
	auth.POST("/invoices/:id/send", handlers.RequirePermission("send_invoices"), handlers.SendInvoiceHandler(db, gdb, emailSvc))
	auth.GET("/invoices/:id/pdf", handlers.RequirePermission("view_invoices"), handlers.GenerateInvoicePDF(db))
	auth.GET("/invoices/:id/qr", handlers.RequirePermission("view_invoices"), handlers.GenerateInvoiceQRCodeJPEG(db))
	auth.DELETE("/invoices/:id", handlers.RequirePermission("delete_invoices"), handlers.DeleteInvoiceHandler(db, gdb))

	// ==================== 10. PAYMENTS ====================
	auth.GET("/invoices/:id/payments", handlers.RequirePermission("view_invoices"), handlers.GetPaymentsHandler(db))
	auth.POST("/invoices/:id/payments", handlers.RequirePermission("record_payments"), handlers.RecordPaymentHandler(db, gdb, push))
	auth.DELETE("/invoices/:id/payments/:payment_id", handlers.RequirePermission("refund_payments"), handlers.DeletePaymentHandler(db, gdb))

	// ==================== 11. MATERIAL ORDERS ====================
	auth.GET("/material_orders", handlers.RequirePermission("view_material_orders"), handlers.GetMaterialOrdersHandler(db))
	auth.GET("/material_orders/:id", handlers.RequirePermission("view_material_orders"), handlers.GetMaterialOrderHandler(db))
	auth.POST("/material_orders", handlers.RequirePermission("create_material_orders"), handlers.CreateMaterialOrderHandler(db, gdb))
	auth.POST("/material_orders/:id/import_template", handlers.RequirePermission("edit_material_orders"), handlers.ImportTemplateIntoMaterialOrderHandler(db, gdb))
	auth.PUT("/material_orders/:id/status", handlers.RequirePermission("edit_material_orders"), handlers.UpdateMaterialOrderStatusHandler(db, gdb))
	auth.DELETE("/material_orders/:id", handlers.RequirePermission("delete_material_orders"), handlers.DeleteMaterialOrderHandler(db, gdb))

	// ==================== 12. WORK ORDERS ====================
	auth.GET("/work_orders", handlers.RequirePermission("view_work_orders"), handlers.GetWorkOrdersHandler(db))
	auth.GET("/work_orders/:id", handlers.RequirePermission("view_work_orders"), handlers.GetWorkOrderHandler(db))
	auth.POST("/work_orders", handlers.RequirePermission("create_work_orders"), handlers.CreateWorkOrderHandler(db, gdb))
	auth.PUT("/work_orders/:id", handlers.RequirePermission("edit_work_orders"), handlers.UpdateWorkOrderHandler(db, gdb))
	auth.POST("/work_orders/:id/import_template", handlers.RequirePermission("edit_work_orders"), handlers.ImportTemplateIntoWorkOrderHandler(db, gdb))
	auth.PUT("/work_orders/:id/reorder", handlers.RequirePermission("edit_work_orders"), handlers.ReorderWorkOrderItemsHandler(db, gdb))
	auth.PUT("/work_orders/:id/status", handlers.RequirePermission("schedule_work_orders"), handlers.UpdateWorkOrderStatusHandler(db, gdb))
	auth.GET("/work_orders/:id/qr", handlers.RequirePermission("view_work_orders"), handlers.GenerateWorkOrderQRCodeJPEG(db))
	auth.DELETE("/work_orders/:id", handlers.RequirePermission("delete_work_orders"), handlers.DeleteWorkOrderHandler(db, gdb))

	// ==================== 13. EXPORTS ====================
	auth.GET("/export/leads.csv", handlers.RequirePermission("export_data"), handlers.ExportLeadsCSV(db))
	auth.GET("/export/quotes.csv", handlers.RequirePermission("export_data"), handlers.ExportQuotesCSV(db))
	auth.GET("/export/quotes.xlsx", handlers.RequirePermission("export_data"), handlers.ExportQuotesExcel(db))
	auth.GET("/export/material_orders.csv", handlers.RequirePermission("export_data"), handlers.ExportMaterialOrdersCSV(db))
	auth.POST("/export/jobs/quotes", handlers.RequirePermission("export_data"), exportManager.StartQuotesExportHandler())
	auth.GET("/export/jobs", handlers.RequirePermission("export_data"), exportManager.ListExportJobsHandler())
	auth.GET("/export/jobs/:id", handlers.RequirePermission("export_data"), exportManager.GetExportJobHandler())
	auth.POST("/export/jobs/:id/cancel", handlers.RequirePermission("export_data"), exportManager.CancelExportJobHandler())
	auth.GET("/export/jobs/:id/download", handlers.RequirePermission("export_data"), exportManager.DownloadExportHandler())

	// ==================== 14. EMAIL TEMPLATES ====================
	auth.GET("/email_templates", handlers.RequirePermission("manage_email_templates"), handlers.GetEmailTemplatesHandler(db))
	auth.GET("/email_templates/variables", handlers.RequirePermission("manage_email_templates"), handlers.GetEmailTemplateVariablesHandler(emailSvc))
	auth.GET("/email_templates/:id", handlers.RequirePermission("manage_email_templates"), handlers.GetEmailTemplateHandler(db))
	auth.POST("/email_templates", handlers.RequirePermission("manage_email_templates"), handlers.CreateEmailTemplateHandler(db, gdb, emailSvc))
	auth.POST("/email_templates/preview", handlers.RequirePermission("manage_email_templates"), handlers.PreviewEmailTemplateHandler(emailSvc))
	auth.PUT("/email_templates/:id", handlers.RequirePermission("manage_email_templates"), handlers.UpdateEmailTemplateHandler(db, gdb, emailSvc))
	auth.DELETE("/email_templates/:id", handlers.RequirePermission("manage_email_templates"), handlers.DeleteEmailTemplateHandler(db, gdb))

	// ==================== 15. NOTIFICATIONS ====================
	auth.GET("/notifications", handlers.GetNotificationsHandler(db))
	auth.PUT("/notifications/read_all", handlers.MarkAllNotificationsReadHandler(db))
	auth.PUT("/notifications/:id/read", handlers.MarkNotificationReadHandler(db))
	auth.POST("/notifications/device_token", handlers.RegisterDeviceTokenHandler(push))
	auth.DELETE("/notifications/device_token", handlers.RemoveDeviceTokenHandler(push))

	// ==================== 16. SETTINGS ====================
	auth.GET("/settings", handlers.GetSettingsHandler(db))
	auth.PUT("/settings", handlers.RequirePermission("manage_settings"), handlers.UpdateSettingsHandler(db, gdb))

	// ==================== 17. DASHBOARD & REPORTS ====================
	auth.GET("/dashboard/stats", handlers.RequirePermission("view_reports"), handlers.GetDashboardStatsHandler(db))
	auth.GET("/dashboard/crew_schedule", handlers.RequirePermission("view_reports"), handlers.GetCrewScheduleHandler(db))

	// ==================== 18. ACTIVITY LOGS ====================
	auth.GET("/activity_logs", handlers.RequirePermission("view_activity_logs"), handlers.GetActivityLogsHandler(gdb))
	auth.GET("/activity_logs/:entity_type/:entity_id", handlers.RequirePermission("view_activity_logs"), handlers.GetEntityHistoryHandler(gdb))

	// ==================== 19. SWAGGER ====================
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	// Get port from environment variable or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Validate port is numeric
	portInt, err := strconv.Atoi(port)
	if err != nil {
		log.Fatalf("Invalid PORT environment variable: %s. Must be a number.", port)
	}
	if portInt < 0 || portInt > 65535 {
		log.Fatalf("Invalid PORT: %d. Must be between 0 and 65535.", portInt)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.Stop()

	// Let in-flight export jobs finish before the HTTP server goes away
	if err := exportManager.Shutdown(20 * time.Second); err != nil {
		log.Printf("Warning: Export manager shutdown error: %v", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exiting")
}
