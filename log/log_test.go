package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSLog(t *testing.T) {
	Convey("测试 SLog", t, func() {
		var buf bytes.Buffer

		Convey("json 格式与字段", func() {
			l, err := NewWithWriter(&buf, &Options{
				Level:  "debug",
				Format: "json",
				Fields: map[string]any{"service": "declsql"},
			})
			So(err, ShouldBeNil)

			l.With("operation", "select").WithGroup("sql").Debug("execute", "rows", 3)

			var m map[string]any
			So(json.Unmarshal(buf.Bytes(), &m), ShouldBeNil)
			So(m["msg"], ShouldEqual, "execute")
			So(m["service"], ShouldEqual, "declsql")
			So(m["operation"], ShouldEqual, "select")
			So(m["sql"], ShouldResemble, map[string]any{"rows": float64(3)})
		})

		Convey("级别过滤", func() {
			l, err := NewWithWriter(&buf, &Options{Level: "warn"})
			So(err, ShouldBeNil)
			l.Info("hidden")
			l.Warn("shown")
			So(buf.String(), ShouldNotContainSubstring, "hidden")
			So(buf.String(), ShouldContainSubstring, "shown")
		})

		Convey("自定义时间格式", func() {
			l, err := NewWithWriter(&buf, &Options{TimeFormat: "2006-01-02"})
			So(err, ShouldBeNil)
			l.Info("hello")
			So(buf.String(), ShouldStartWith, "time=2")
			So(strings.Count(strings.SplitN(buf.String(), " ", 2)[0], ":"), ShouldEqual, 0)
		})

		Convey("无效选项", func() {
			_, err := NewWithWriter(&buf, &Options{Level: "verbose"})
			So(err, ShouldNotBeNil)
			_, err = NewWithWriter(&buf, &Options{Format: "xml"})
			So(err, ShouldNotBeNil)
			_, err = NewWithOptions(nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestWriter(t *testing.T) {
	Convey("测试输出器", t, func() {
		dir := t.TempDir()
		path1 := filepath.Join(dir, "a", "declsql.log")
		path2 := filepath.Join(dir, "b.log")

		l, err := NewWithOptions(&Options{Output: path1 + "," + path2, Format: "text"})
		So(err, ShouldBeNil)
		l.Info("written")
		So(l.Close(), ShouldBeNil)

		for _, p := range []string{path1, path2} {
			data, err := os.ReadFile(p)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, "msg=written")
		}

		Convey("关闭后写入失败", func() {
			w, err := NewFileWriter(filepath.Join(dir, "c.log"))
			So(err, ShouldBeNil)
			So(w.Close(), ShouldBeNil)
			_, err = w.Write([]byte("x"))
			So(err, ShouldNotBeNil)
			So(w.Close(), ShouldBeNil)
		})
	})
}

func TestDefault(t *testing.T) {
	Convey("测试默认日志器", t, func() {
		old := Default()
		So(old, ShouldNotBeNil)

		var buf bytes.Buffer
		l, _ := NewWithWriter(&buf, nil)
		SetDefault(l)
		Default().Info("via default")
		So(buf.String(), ShouldContainSubstring, "via default")

		SetDefault(nil)
		So(Default(), ShouldEqual, l)
		SetDefault(old)

		Discard().Error("nothing")
	})
}
