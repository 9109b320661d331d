package rest_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "log/slog"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"     // swagger embed files
	ginSwagger "github.com/swaggo/gin-swagger" // gin-swagger middleware

	"github.com/sharedcode/grader/engine"
	"github.com/sharedcode/grader/rest_api/docs"
)

// NewRouter builds the HTTP router over the engine facade. Every route but
// the welcome banner and the swagger endpoint sits behind basic auth.
func NewRouter(srv *engine.Server) *gin.Engine {
	api := NewGraderRestApi(srv)

	ClearMethods()
	RegisterMethod(GET, "/files/", api.ListFiles)
	RegisterMethod(POST, "/files/", api.CreateFiles)
	RegisterMethod(GET_ONE, "/files/:uuid/", api.GetFile)
	RegisterMethod(DELETE, "/files/:uuid/", api.DeleteFile)

	RegisterMethod(GET, "/reporters/", api.ListReporters)
	RegisterMethod(POST, "/reporters/", api.CreateReporter)
	RegisterMethod(GET_ONE, "/reporters/:uuid/", api.GetReporter)
	RegisterMethod(PUT, "/reporters/:uuid/", api.UpdateReporter)
	RegisterMethod(DELETE, "/reporters/:uuid/", api.DeleteReporter)

	RegisterMethod(GET, "/assignments/", api.ListAssignments)
	RegisterMethod(POST, "/assignments/", api.CreateAssignment)
	RegisterMethod(GET_ONE, "/assignments/:asn/", api.GetAssignment)
	RegisterMethod(PUT, "/assignments/:asn/", api.UpdateAssignment)
	RegisterMethod(DELETE, "/assignments/:asn/", api.DeleteAssignment)
	RegisterMethod(GET, "/assignments/:asn/tests/", api.ListAssignmentTests)
	RegisterMethod(POST, "/assignments/:asn/tests/", api.CreateTest)
	RegisterMethod(GET, "/assignments/:asn/submissions/", api.ListAssignmentSubmissions)
	RegisterMethod(POST, "/assignments/:asn/submissions/", api.CreateSubmission)
	RegisterMethod(GET, "/assignments/:asn/submissions/:sub/runs/", api.ListRuns)
	RegisterMethod(POST, "/assignments/:asn/submissions/:sub/runs/", api.CreateRuns)
	RegisterMethod(GET_ONE, "/assignments/:asn/submissions/:sub/runs/:run/", api.GetRun)
	RegisterMethod(DELETE, "/assignments/:asn/submissions/:sub/runs/:run/", api.DeleteRun)

	RegisterMethod(GET, "/tests/", api.ListTests)
	RegisterMethod(GET_ONE, "/tests/:uuid/", api.GetTest)
	RegisterMethod(PUT, "/tests/:uuid/", api.UpdateTest)
	RegisterMethod(DELETE, "/tests/:uuid/", api.DeleteTest)
	RegisterMethod(GET, "/tests/:uuid/files/", api.ListTestFiles)
	RegisterMethod(PUT, "/tests/:uuid/files/", api.AddTestFiles)
	RegisterMethod(DELETE, "/tests/:uuid/files/", api.RemoveTestFiles)
	RegisterMethod(GET, "/tests/:uuid/reporters/", api.ListTestReporters)
	RegisterMethod(PUT, "/tests/:uuid/reporters/", api.AddTestReporters)
	RegisterMethod(DELETE, "/tests/:uuid/reporters/", api.RemoveTestReporters)

	RegisterMethod(GET, "/submissions/", api.ListSubmissions)
	RegisterMethod(GET_ONE, "/submissions/:uuid/", api.GetSubmission)
	RegisterMethod(PUT, "/submissions/:uuid/", api.UpdateSubmission)
	RegisterMethod(DELETE, "/submissions/:uuid/", api.DeleteSubmission)
	RegisterMethod(GET, "/submissions/:uuid/files/", api.ListSubmissionFiles)
	RegisterMethod(PUT, "/submissions/:uuid/files/", api.AddSubmissionFiles)
	RegisterMethod(DELETE, "/submissions/:uuid/files/", api.RemoveSubmissionFiles)

	router := gin.Default()
	router.HandleMethodNotAllowed = true
	docs.SwaggerInfo.BasePath = "/"

	router.GET("/", api.Welcome)
	auth := basicAuth(srv)
	for _, rm := range RestMethods() {
		switch rm.Verb {
		case GET:
			fallthrough
		case GET_ONE:
			router.GET(rm.Path, auth, rm.Handler)
		case DELETE:
			router.DELETE(rm.Path, auth, rm.Handler)
		case POST:
			router.POST(rm.Path, auth, rm.Handler)
		case PUT:
			router.PUT(rm.Path, auth, rm.Handler)
		case PATCH:
			router.PATCH(rm.Path, auth, rm.Handler)
		default:
			panic(fmt.Sprintf("HTTP verb %d not supported", rm.Verb))
		}
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
	return router
}

// Main serves the REST API until SIGINT/SIGTERM, then drains the HTTP server
// and the worker pool.
func Main(addr string, srv *engine.Server) error {
	router := NewRouter(srv)
	httpSrv := &http.Server{Addr: addr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	log.Info("grader REST API listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("http shutdown failed", "error", err)
	}
	return srv.Shutdown(shutCtx)
}
