package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/IlyasAtabaev731/shopper/internal/config"
	"github.com/IlyasAtabaev731/shopper/internal/domain/models"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
)

type AuthService interface {
	Signup(ctx context.Context, name, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
}

type CartService interface {
	Increment(ctx context.Context, userID string, slot int) error
	Decrement(ctx context.Context, userID string, slot int) error
	Read(ctx context.Context, userID string) (models.Cart, error)
}

type CatalogService interface {
	AddProduct(ctx context.Context, p models.Product) (models.Product, error)
	ListProducts(ctx context.Context, category string) ([]models.Product, error)
	NewCollections(ctx context.Context) ([]models.Product, error)
	PopularInWomen(ctx context.Context) ([]models.Product, error)
	Related(ctx context.Context, category string) ([]models.Product, error)
}

type ImageStorage interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
}

type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Services groups the collaborators the handlers call into.
type Services struct {
	Auth    AuthService
	Cart    CartService
	Catalog CatalogService
	Images  ImageStorage
	Tokens  TokenVerifier
	// ImagesDir is served under the images url prefix. Empty when uploads
	// live outside the local disk.
	ImagesDir string
}

type APIServer struct {
	config   *config.Config
	logger   *slog.Logger
	server   *http.Server
	services Services
}

func New(config *config.Config, logger *slog.Logger, services Services) *APIServer {
	s := &APIServer{
		config: config,
		logger: logger,
		server: &http.Server{
			Addr:         config.ApiHost + ":" + strconv.Itoa(config.ApiPort),
			ReadTimeout:  config.HTTP.ReadTimeout,
			WriteTimeout: config.HTTP.WriteTimeout,
			IdleTimeout:  config.HTTP.IdleTimeout,
		},
		services: services,
	}

	s.configureRouter()

	return s
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting server", slog.String("port", strconv.Itoa(s.config.ApiPort)))

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")
	return s.server.Shutdown(ctx)
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) configureRouter() {
	router := mux.NewRouter()

	router.HandleFunc("/", s.rootHandler()).Methods("GET")

	router.HandleFunc("/signup", s.signupHandler()).Methods("POST")
	router.HandleFunc("/login", s.loginHandler()).Methods("POST")

	router.HandleFunc("/allproducts", s.allProductsHandler()).Methods("GET")
	router.HandleFunc("/newcollections", s.newCollectionsHandler()).Methods("GET")
	router.HandleFunc("/popularinwomen", s.popularInWomenHandler()).Methods("GET")
	router.HandleFunc("/relatedproducts", s.relatedProductsHandler()).Methods("POST")
	router.HandleFunc("/addproduct", s.addProductHandler()).Methods("POST")
	router.HandleFunc("/upload", s.uploadHandler()).Methods("POST")

	router.HandleFunc("/addtocart", s.authenticate(s.addToCartHandler())).Methods("POST")
	router.HandleFunc("/removefromcart", s.authenticate(s.removeFromCartHandler())).Methods("POST")
	router.HandleFunc("/getcart", s.authenticate(s.getCartHandler())).Methods("POST")

	if prefix := s.config.Images.Route(); s.services.ImagesDir != "" && prefix != "" {
		router.PathPrefix(prefix).
			Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(s.services.ImagesDir)))).
			Methods("GET")
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Route not found", http.StatusNotFound)
	})

	// CORS wraps the router so preflight requests are answered before
	// method matching.
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", tokenHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})

	s.server.Handler = corsHandler(s.logRequests(router))
}

func (s *APIServer) rootHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, "Root")
	}
}
