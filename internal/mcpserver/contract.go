package mcpserver

// NamingRules describes how exported names are turned into cleaned paths.
// LLM consumers read it before predicting where a page will end up.
const NamingRules = `# notionclean Naming Rules

Exports append an opaque identifier to every page and database name,
separated by one space: ` + "`" + `Meeting Notes 834fa2b19c7d.md` + "`" + `. Cleaning removes
those identifiers and makes every path portable.

## Paths

1. Surrounding whitespace is trimmed and ` + "`" + `%20` + "`" + ` is read as a space.
2. The last space-separated token before ` + "`" + `.md` + "`" + ` or ` + "`" + `.csv` + "`" + ` is the page
   identifier and is removed. ` + "`" + `.csv` + "`" + ` always becomes ` + "`" + `.md` + "`" + `.
3. Every directory segment of the form ` + "`" + `<name> <id>` + "`" + ` becomes ` + "`" + `<name>` + "`" + `.
4. Any other extension (images, PDFs, HTML) keeps its name; only spaces
   and illegal characters are changed.
5. Remaining spaces become ` + "`" + `-` + "`" + `; everything outside ` + "`" + `a-z A-Z 0-9 - / .` + "`" + ` is
   dropped; runs of dashes collapse to one.

| Exported                                  | Cleaned                    |
|-------------------------------------------|----------------------------|
| ` + "`" + `My Notion Page 12345/My file 12345.md` + "`" + `   | ` + "`" + `My-Notion-Page/My-file.md` + "`" + `  |
| ` + "`" + `file with spaces 12345.csv` + "`" + `              | ` + "`" + `file-with-spaces.md` + "`" + `        |
| ` + "`" + `Notion Page 12345/Notion Image.png` + "`" + `      | ` + "`" + `Notion-Page/Notion-Image.png` + "`" + ` |

## Links

Every ` + "`" + `[text](target)` + "`" + ` in a document has its target cleaned by the
rules above. The text is never changed. Absolute URLs (` + "`" + `https:` + "`" + `,
` + "`" + `mailto:` + "`" + `, ...) are left alone.

## Tables

A ` + "`" + `.csv` + "`" + ` table becomes a Markdown table in the ` + "`" + `.md` + "`" + ` file of the same
cleaned name. The first cell of every row links to
` + "`" + `<table name>/<cleaned cell>.md` + "`" + `, the directory holding the row pages.

## Skipped files

` + "`" + `.DS_Store` + "`" + ` and the ` + "`" + `*_all.csv` + "`" + ` duplicates of tables are never carried over.
`
