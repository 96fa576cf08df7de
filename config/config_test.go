package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hatlonely/declsql/log"
	. "github.com/smartystreets/goconvey/convey"
)

type dbOptions struct {
	Driver  string        `cfg:"driver" validate:"required,oneof=mysql sqlite3"`
	Timeout time.Duration `cfg:"timeout" def:"3s"`
	MaxOpen int           `cfg:"maxOpen" def:"10" validate:"gte=1"`
	Tags    []string      `cfg:"tags"`
	Since   time.Time     `cfg:"since"`
	Ignored string        `cfg:"-"`
	Log     *log.Options  `cfg:"log"`
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	files := map[string]string{
		"db.yaml": `
driver: mysql
timeout: 500ms
tags: [a, b]
since: 2024-01-02
ignored: x
log:
  level: debug
  format: json
`,
		"db.toml": `
driver = "mysql"
timeout = "500ms"
tags = ["a", "b"]
since = "2024-01-02"
ignored = "x"

[log]
level = "debug"
format = "json"
`,
		"db.ini": `
driver = mysql
timeout = 500ms
tags = a,b
since = 2024-01-02
ignored = x

[log]
level = debug
format = json
`,
		"db.json": `{
  "driver": "mysql",
  "timeout": "500ms",
  "tags": ["a", "b"],
  "since": "2024-01-02",
  "ignored": "x",
  "log": {"level": "debug", "format": "json"}
}`,
	}

	Convey("测试加载配置文件", t, func() {
		for name, content := range files {
			Convey(name, func() {
				var opts dbOptions
				So(Load(writeFile(t, name, content), &opts), ShouldBeNil)

				So(opts.Driver, ShouldEqual, "mysql")
				So(opts.Timeout, ShouldEqual, 500*time.Millisecond)
				So(opts.MaxOpen, ShouldEqual, 10)
				So(opts.Tags, ShouldResemble, []string{"a", "b"})
				So(opts.Since.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
				So(opts.Ignored, ShouldBeEmpty)
				So(opts.Log, ShouldNotBeNil)
				So(opts.Log.Level, ShouldEqual, "debug")
				So(opts.Log.Format, ShouldEqual, "json")
				So(opts.Log.Output, ShouldEqual, "stdout")
			})
		}
	})

	Convey("测试加载错误", t, func() {
		var opts dbOptions

		Convey("不支持的扩展名", func() {
			So(Load(writeFile(t, "db.xml", "<db/>"), &opts), ShouldNotBeNil)
		})

		Convey("文件不存在", func() {
			So(Load(filepath.Join(t.TempDir(), "missing.yaml"), &opts), ShouldNotBeNil)
		})

		Convey("解析失败", func() {
			So(Load(writeFile(t, "db.json", "{"), &opts), ShouldNotBeNil)
		})
	})
}

func TestLoadBytes(t *testing.T) {
	Convey("测试 LoadBytes", t, func() {
		Convey("默认值", func() {
			var opts dbOptions
			So(LoadBytes([]byte(`driver: sqlite3`), FormatYAML, &opts), ShouldBeNil)
			So(opts.Timeout, ShouldEqual, 3*time.Second)
			So(opts.MaxOpen, ShouldEqual, 10)
			So(opts.Log.Level, ShouldEqual, "info")
			So(opts.Log.Format, ShouldEqual, "text")
		})

		Convey("数字形式的时间", func() {
			var opts dbOptions
			So(LoadBytes([]byte(`{"driver": "sqlite3", "timeout": 1.5, "since": 1700000000}`), FormatJSON, &opts), ShouldBeNil)
			So(opts.Timeout, ShouldEqual, 1500*time.Millisecond)
			So(opts.Since.Unix(), ShouldEqual, int64(1700000000))

			opts = dbOptions{}
			So(LoadBytes([]byte("driver = \"sqlite3\"\ntimeout = 2000\n"), FormatTOML, &opts), ShouldBeNil)
			So(opts.Timeout, ShouldEqual, 2000*time.Nanosecond)
		})

		Convey("校验失败", func() {
			var opts dbOptions
			So(LoadBytes([]byte(`driver: oracle`), FormatYAML, &opts), ShouldNotBeNil)

			opts = dbOptions{}
			So(LoadBytes([]byte("driver: mysql\nmaxOpen: -1"), FormatYAML, &opts), ShouldNotBeNil)

			opts = dbOptions{}
			So(LoadBytes([]byte("driver: mysql\nlog:\n  level: verbose"), FormatYAML, &opts), ShouldNotBeNil)
		})

		Convey("类型不匹配", func() {
			var opts dbOptions
			So(LoadBytes([]byte(`driver: 12`), FormatYAML, &opts), ShouldNotBeNil)

			opts = dbOptions{}
			So(LoadBytes([]byte("driver: mysql\nmaxOpen: many"), FormatYAML, &opts), ShouldNotBeNil)

			opts = dbOptions{}
			So(LoadBytes([]byte("driver: mysql\ntimeout: soon"), FormatYAML, &opts), ShouldNotBeNil)
		})

		Convey("未知格式", func() {
			var opts dbOptions
			So(LoadBytes([]byte(`driver: mysql`), Format("xml"), &opts), ShouldNotBeNil)
			So(LoadBytes([]byte(`driver: mysql`), FormatYAML, opts), ShouldNotBeNil)
		})
	})
}

func TestSetDefaults(t *testing.T) {
	Convey("测试 SetDefaults", t, func() {
		type nested struct {
			Ports []int   `def:"80, 443"`
			Ratio float64 `def:"0.5"`
			Flag  bool    `def:"true"`
			Count uint8   `def:"0x10"`
		}
		type options struct {
			Name   string `def:"declsql"`
			Nested nested
			Ptr    *nested
		}

		opts := options{Name: "custom"}
		So(SetDefaults(&opts), ShouldBeNil)
		So(opts.Name, ShouldEqual, "custom")
		So(opts.Nested.Ports, ShouldResemble, []int{80, 443})
		So(opts.Nested.Ratio, ShouldEqual, 0.5)
		So(opts.Nested.Flag, ShouldBeTrue)
		So(opts.Nested.Count, ShouldEqual, uint8(16))
		So(opts.Ptr, ShouldNotBeNil)
		So(opts.Ptr.Ports, ShouldResemble, []int{80, 443})

		So(SetDefaults(opts), ShouldNotBeNil)

		type bad struct {
			N int `def:"ten"`
		}
		So(SetDefaults(&bad{}), ShouldNotBeNil)
	})
}
