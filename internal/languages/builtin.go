package languages

// MathID is the language every display math block classifies to.
const MathID = "latex"

func builtinLanguages() []*EmbeddedLanguage {
	python := define(TempFileBacked{Ext: "py"}, "python")
	python.Inject = "# type: ignore"
	python.Trigger = []string{"."}

	r := define(TempFileBacked{Ext: "r"}, "r")
	r.Trigger = []string{"$", "@", ":"}

	julia := define(ContentAddressed{Ext: "jl"}, "julia")
	julia.Trigger = []string{"."}

	js := define(ContentAddressed{Ext: "js"}, "javascript", "js", "ojs", "d3")
	js.Trigger = []string{"."}

	ts := define(ContentAddressed{Ext: "ts"}, "typescript", "ts")
	ts.Trigger = []string{"."}

	latex := define(ContentAddressed{Ext: "tex"}, MathID, "tex")
	latex.Trigger = []string{"\\"}

	return []*EmbeddedLanguage{
		python,
		r,
		julia,
		define(ContentAddressed{Ext: "sql"}, "sql"),
		define(ContentAddressed{Ext: "sh"}, "bash", "sh", "shell"),
		js,
		ts,
		define(ContentAddressed{Ext: "html"}, "html"),
		define(ContentAddressed{Ext: "css"}, "css"),
		define(ContentAddressed{Ext: "cpp"}, "cpp"),
		define(ContentAddressed{Ext: "c"}, "c"),
		define(ContentAddressed{Ext: "go"}, "go"),
		define(ContentAddressed{Ext: "rs"}, "rust"),
		define(ContentAddressed{Ext: "java"}, "java"),
		define(ContentAddressed{Ext: "lua"}, "lua"),
		latex,
		define(ContentAddressed{Ext: "dot"}, "dot", "graphviz"),
		define(ContentAddressed{Ext: "mmd"}, "mermaid"),
		define(ContentAddressed{Ext: "yaml"}, "yaml", "yml"),
	}
}

// Builtin returns a registry with the built-in languages.
func Builtin() *Registry {
	r, err := NewRegistry(builtinLanguages()...)
	if err != nil {
		// The built-in table is static; an error here is a programming bug.
		panic(err)
	}
	return r
}
