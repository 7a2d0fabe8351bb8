package xhttp

import (
	"net"
	"os"
	"os/signal"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/nimasrn/crm-dispatch/pkg/logger"
	"github.com/valyala/fasthttp"
)

type RequestHeader = fasthttp.RequestHeader
type ResponseHeader = fasthttp.ResponseHeader
type Server = fasthttp.Server

// ServerOption holds the knobs the services tune. Everything else keeps the
// fasthttp default.
type ServerOption struct {
	Name string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ReadBufferSize also caps the request header size.
	ReadBufferSize     int
	WriteBufferSize    int
	MaxRequestBodySize int

	Concurrency   int
	MaxConnsPerIP int
}

var DefaultServerOption = ServerOption{
	Name:               "crm-dispatch",
	ReadTimeout:        5 * time.Second,
	WriteTimeout:       35 * time.Second,
	IdleTimeout:        10 * time.Second,
	ReadBufferSize:     4 * 1024,
	WriteBufferSize:    4 * 1024,
	MaxRequestBodySize: 8 * 1024 * 1024,
	Concurrency:        10_000,
	MaxConnsPerIP:      1_000,
}

// Engine couples a router, its middleware chain and the fasthttp server
// that serves them.
type Engine struct {
	*Router
	*Server
	middle []MiddlewareFunc
}

func NewServer(opt ServerOption) *Engine {
	return &Engine{
		Router: NewRouter(),
		Server: &fasthttp.Server{
			Handler: func(ctx *RequestCtx) {
				ctx.Error(StatusText(StatusNotFound), StatusNotFound)
			},
			ErrorHandler: func(ctx *RequestCtx, err error) {
				logger.Warn("connection error", "remote", ctx.RemoteAddr().String(), "error", err)
			},
			Name:                         opt.Name,
			ReadTimeout:                  opt.ReadTimeout,
			WriteTimeout:                 opt.WriteTimeout,
			IdleTimeout:                  opt.IdleTimeout,
			ReadBufferSize:               opt.ReadBufferSize,
			WriteBufferSize:              opt.WriteBufferSize,
			MaxRequestBodySize:           opt.MaxRequestBodySize,
			Concurrency:                  opt.Concurrency,
			MaxConnsPerIP:                opt.MaxConnsPerIP,
			TCPKeepalive:                 true,
			DisablePreParseMultipartForm: true,
			NoDefaultServerHeader:        true,
			NoDefaultDate:                true,
			NoDefaultContentType:         true,
			CloseOnShutdown:              true,
			Logger:                       logger.GetLogger(),
		},
	}
}

// CreateServer returns an engine with the default options and a router
// answering JSON on 404 and 405.
func CreateServer() *Engine {
	s := NewServer(DefaultServerOption)
	s.Router = CreateDefaultRouter()
	return s
}

func (e *Engine) ListenAndServe(addr string) error {
	e.DoRouting()
	logger.Info("http server listening", "addr", addr)
	return e.Server.ListenAndServe(addr)
}

// Serve is ListenAndServe on an existing listener.
func (e *Engine) Serve(ln net.Listener) error {
	e.DoRouting()
	return e.Server.Serve(ln)
}

// DoRouting installs the router as the server handler, wrapped so that the
// first middleware passed to Use is the outermost one.
func (e *Engine) DoRouting() {
	for method, paths := range e.Router.List() {
		for _, p := range paths {
			logger.Debug("route registered", "method", method, "path", p)
		}
	}
	h := e.Router.Handler
	for i := len(e.middle) - 1; i >= 0; i-- {
		h = e.middle[i](h)
	}
	e.Server.Handler = h
	for i, m := range e.middle {
		logger.Debug("middleware registered", "order", i+1, "name", runtime.FuncForPC(reflect.ValueOf(m).Pointer()).Name())
	}
}

func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// CloseOnSignal shuts the server down on SIGINT, SIGTERM or SIGQUIT.
func (e *Engine) CloseOnSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig
		e.Shutdown()
	}()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (e *Engine) Shutdown() {
	logger.Info("http server shutting down", "pid", os.Getpid())
	if err := e.Server.Shutdown(); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
}
