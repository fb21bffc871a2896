package questionnaire

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"gopkg.in/yaml.v3"
)

// A Profile describes how the parts of a word processor HTML export are marked
// up. Class names are matched as substrings of an element's class attribute.
type Profile struct {
	Charset string `yaml:"charset"` // empty means the document declares its own

	// Study is the label of the top level sequence. When empty the document
	// title is used.
	Study string `yaml:"study"`

	// Similarity is passed to tree inference for conditions, zero means the
	// default.
	Similarity float64 `yaml:"similarity"`

	QuestionTag            string   `yaml:"question_tag"`
	SequenceClass          string   `yaml:"sequence_class"`
	LiteralClass           string   `yaml:"literal_class"`
	InstructionClass       string   `yaml:"instruction_class"`
	AnswerClasses          []string `yaml:"answer_classes"`
	ConditionClass         string   `yaml:"condition_class"`
	FootnoteTextClass      string   `yaml:"footnote_text_class"`
	FootnoteReferenceClass string   `yaml:"footnote_reference_class"`

	GridMarker       string   `yaml:"grid_marker"`
	ResponseKeywords []string `yaml:"response_keywords"`
	NumericKeywords  []string `yaml:"numeric_keywords"`
	DateKeywords     []string `yaml:"date_keywords"`
	SkipAnswers      []string `yaml:"skip_answers"`
	SkipConditions   []string `yaml:"skip_conditions"`
}

func DefaultProfile() Profile {
	return Profile{
		QuestionTag:            "h3",
		SequenceClass:          "Heading1Char",
		LiteralClass:           "Standard",
		InstructionClass:       "Instructions",
		AnswerClasses:          []string{"Answerlist", "listlevel1RTFNum2"},
		ConditionClass:         "RoutingFilter",
		FootnoteTextClass:      "footnotetext",
		FootnoteReferenceClass: "footnotereference",
		GridMarker:             "GRID: FOR EACH ITEM",
		ResponseKeywords:       []string{"Numeric", "TEXTFILL", "ENTER", "RANGE", "OPEN ENDED", "DATETYPE"},
		NumericKeywords:        []string{"Numeric", "RANGE"},
		DateKeywords:           []string{"ENTER DATE", "DATETYPE"},
		SkipAnswers:            []string{"READ OUT"},
		SkipConditions:         []string{"{Ask all}"},
	}
}

// LoadProfile reads a profile from a YAML file. Settings missing from the file
// keep their default values.
func LoadProfile(filename string) (Profile, error) {
	p := DefaultProfile()
	f, err := os.Open(filename)
	if err != nil {
		return p, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

// SaveProfile writes a profile as YAML, creating or replacing the file.
func SaveProfile(filename string, p Profile) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return f.Close()
}

// Word exports are usually in one of the Windows or ISO code pages.
var codePages = map[string]*charmap.Charmap{
	"windows-1250": charmap.Windows1250,
	"windows-1251": charmap.Windows1251,
	"windows-1252": charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"cp850":        charmap.CodePage850,
	"macintosh":    charmap.Macintosh,
}

func charsetEncoding(name string) (encoding.Encoding, error) {
	if cm, ok := codePages[strings.ToLower(name)]; ok {
		return cm, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", name, err)
	}
	return enc, nil
}

// decodeReader wraps r so that it yields UTF-8 text.
func (p *Profile) decodeReader(r io.Reader) (io.Reader, error) {
	if p.Charset == "" {
		return r, nil
	}
	enc, err := charsetEncoding(p.Charset)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder().Reader(r), nil
}
