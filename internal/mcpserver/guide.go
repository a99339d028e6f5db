package mcpserver

// ReadingGuide explains to LLM consumers how books, chapters and reading
// positions are addressed by the catread tools.
const ReadingGuide = `# catread Reading Guide

## Books

- Every book has a numeric ` + "`id`" + ` and a ` + "`filename`" + ` in the library directory.
  The filename is its identity: a file is ingested at most once.
- ` + "`list_books`" + ` returns id, title, author, chapter_count and hidden for each book.
- New files dropped into the library are picked up by ` + "`ingest_library`" + `
  or by the background scheduler. ` + "`upload_book`" + ` stores a file from a URL
  and ingests it in one step.

## Chapters

- Chapters are addressed by a zero-based ` + "`chapter_index`" + ` in
  ` + "`[0, chapter_count)`" + `. Their display titles are "Chapter 1", "Chapter 2", ...
- ` + "`read_chapter`" + ` returns the chapter as Markdown. When ` + "`user_id`" + ` is
  given the chapter is also recorded as that user's position.

## Reading positions

- A position is ` + "`(chapter_index, paragraph_index)`" + ` per user and book.
- ` + "`record_progress`" + ` stores a position. If ` + "`paragraph_index`" + ` is omitted it
  is kept when the chapter is unchanged and reset to 0 when the chapter changes.
- A book is **unread** without a position, **finished** once the last chapter is
  reached, and **in progress** otherwise.
- Out-of-range chapters and negative paragraphs are rejected and leave the stored
  position untouched.
`
