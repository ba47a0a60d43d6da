// Command backend-stub serves in-memory versions of the customer, product and
// S3 endpoints the storefront calls, for local development.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

var (
	port   int
	secret string
)

var rootCmd = &cobra.Command{
	Use:   "backend-stub",
	Short: "In-memory customer, product and upload backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := fmt.Sprintf(":%d", port)
		slog.Info("Backend stub listening", "addr", addr)
		return http.ListenAndServe(addr, newRouter(secret))
	},
}

func init() {
	rootCmd.Flags().IntVar(&port, "port", 3001, "listen port")
	rootCmd.Flags().StringVar(&secret, "jwt-secret", "stub-secret", "key signing the customer token cookie")
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Backend stub stopped", "error", err)
		os.Exit(1)
	}
}

func newRouter(secret string) chi.Router {
	customers := newCustomerStore([]byte(secret))
	objects := newObjectStore()

	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Route("/customers", func(r chi.Router) {
		r.Post("/", customers.register)
		r.Post("/login", customers.login)
		r.Post("/logout", customers.logout)
		r.Get("/verify", customers.verify)
		r.Get("/getbyemail", customers.getByEmail)
		r.Post("/update", customers.update)
	})
	r.Get("/products", listProducts)
	r.Route("/s3", func(r chi.Router) {
		r.Post("/generate-upload-url", objects.presign)
		r.Put("/objects/*", objects.put)
		r.Delete("/order/{userID}/{orderID}", objects.deleteOrder)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
