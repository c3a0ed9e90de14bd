package echo

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/slighter12/dataset-mcp-go/tools/types"
)

func TestEchoFactory(t *testing.T) {
	Convey("Given an echo binding without options", t, func() {
		handler, err := Factory(types.Binding{ToolName: "echo"})
		So(err, ShouldBeNil)

		Convey("It should return the message unchanged", func() {
			result, err := handler.Invoke(context.Background(), map[string]any{"message": "hi"})
			So(err, ShouldBeNil)
			So(result, ShouldEqual, "hi")
		})
	})

	Convey("Given an echo binding with a prefix", t, func() {
		handler, err := Factory(types.Binding{
			ToolName: "shout",
			Spec:     types.HandlerSpec{Type: "builtin", Name: FactoryName, Options: map[string]any{"prefix": "> "}},
		})
		So(err, ShouldBeNil)

		Convey("It should prepend the prefix", func() {
			result, err := handler.Invoke(context.Background(), map[string]any{"message": "hi"})
			So(err, ShouldBeNil)
			So(result, ShouldEqual, "> hi")
		})
	})
}
