package application

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type greeter struct{ name string }

type stubController struct{ key string }

func (c *stubController) Key() string { return c.key }
func (c *stubController) Register(r *mux.Router) {
	r.HandleFunc(c.key, func(http.ResponseWriter, *http.Request) {})
}

func TestApplication_ServiceRegistry(t *testing.T) {
	t.Parallel()

	app := New(&ApplicationOptions{})
	app.RegisterServices(&greeter{name: "imports"})

	svc := app.Service(greeter{}).(*greeter)
	require.Equal(t, "imports", svc.name)
	require.Panics(t, func() { app.Service(stubController{}) })
}

func TestApplication_ControllersSortedAndDeduplicated(t *testing.T) {
	t.Parallel()

	app := New(&ApplicationOptions{})
	app.RegisterControllers(&stubController{key: "/schemas"}, &stubController{key: "/imports"}, &stubController{key: "/imports"})

	controllers := app.Controllers()
	require.Len(t, controllers, 2)
	require.Equal(t, "/imports", controllers[0].Key())
	require.Equal(t, "/schemas", controllers[1].Key())
	require.NotNil(t, app.EventPublisher())
	require.NotNil(t, app.Logger())
}
